package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// BindJSON binds a JSON body and, on failure, writes a 422 with field-level
// messages. Validation always happens before any store access.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err != nil {
		RespondValidation(ctx, parseBindError(err, out, "json"))

		return false
	}

	return true
}

// BindQuery is the query-string counterpart, mapping fields via form tags.
func BindQuery(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindQuery(out)

	if err != nil {
		RespondValidation(ctx, parseBindError(err, out, "form"))

		return false
	}

	return true
}

func parseBindError(err error, out interface{}, tagName string) map[string][]string {
	rootType := baseStructType(out)

	// validator errors (struct bind tags)

	var validatorError validator.ValidationErrors

	if errors.As(err, &validatorError) {
		fields := make(map[string][]string, len(validatorError))

		for _, fieldError := range validatorError {
			field := wireFieldName(rootType, fieldError.StructField(), tagName)
			fields[field] = append(fields[field], validationMessage(field, fieldError))
		}
		return fields
	}

	// in the event of bad json; truncated bodies surface as unexpected EOF
	// rather than a syntax error

	var syntaxError *json.SyntaxError

	if errors.As(err, &syntaxError) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return map[string][]string{
			"body": {"The request body must be valid JSON."},
		}
	}

	// in the event of a type mismatch

	var unmatchedTypeError *json.UnmarshalTypeError

	if errors.As(err, &unmatchedTypeError) {
		field := strings.TrimSpace(unmatchedTypeError.Field)

		if field == "" {
			field = "body"
		}

		return map[string][]string{
			field: {fmt.Sprintf("The %s field must be of type %s.", field, unmatchedTypeError.Type.String())},
		}
	}

	// final fallback if the error could not be deciphered
	return map[string][]string{
		"body": {"The request could not be processed."},
	}
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

// wireFieldName maps a struct field back to the name the client sent,
// via the json or form tag. Request structs here are flat.
func wireFieldName(rootType reflect.Type, structField, tagName string) string {
	if rootType == nil {
		return strings.ToLower(structField)
	}

	sf, ok := rootType.FieldByName(structField)
	if !ok {
		return strings.ToLower(structField)
	}

	tag := sf.Tag.Get(tagName)
	if tag == "" {
		return strings.ToLower(structField)
	}

	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return strings.ToLower(structField)
	}

	return name
}

func validationMessage(field string, fieldError validator.FieldError) string {
	param := fieldError.Param()

	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "min":
		if fieldError.Kind() == reflect.String {
			return fmt.Sprintf("The %s must be at least %s characters.", field, param)
		}
		return fmt.Sprintf("The %s must be at least %s.", field, param)
	case "max":
		if fieldError.Kind() == reflect.String {
			return fmt.Sprintf("The %s may not be greater than %s characters.", field, param)
		}
		return fmt.Sprintf("The %s may not be greater than %s.", field, param)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}
