package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/barekit/agrilab/pkg/llm"
)

// Handler executes a tool with its raw JSON argument payload.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is a named, schema-declared function the model may invoke.
type Tool struct {
	Name        string
	Description string
	Definition  llm.ToolDefinition
	handler     Handler
}

// New creates a Tool from a Go function using reflection.
// The function must take one argument, optionally preceded by a
// context.Context. The argument must be a struct (or pointer to struct)
// whose fields carry `json` tags for names and `description` tags for
// descriptions. The function must return (string, error) or just error.
func New(name string, description string, fn interface{}) (*Tool, error) {
	def, err := generateDefinition(name, description, fn)
	if err != nil {
		return nil, err
	}

	return &Tool{
		Name:        name,
		Description: description,
		Definition:  *def,
		handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return callReflected(ctx, name, fn, args)
		},
	}, nil
}

// NewWithDefinition creates a Tool from an explicit definition and handler.
// Used for tools whose parameter schema is built from configuration rather
// than from a static struct, such as the facet preselection tool.
func NewWithDefinition(def llm.ToolDefinition, handler Handler) *Tool {
	return &Tool{
		Name:        def.Function.Name,
		Description: def.Function.Description,
		Definition:  def,
		handler:     handler,
	}
}

// Call executes the tool with the given JSON argument payload.
func (t *Tool) Call(ctx context.Context, argsJSON string) (string, error) {
	return t.handler(ctx, json.RawMessage(argsJSON))
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

func callReflected(ctx context.Context, name string, fn interface{}, argsJSON json.RawMessage) (string, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()

	takesContext := fnType.NumIn() == 2

	// Create the argument struct
	argType := fnType.In(fnType.NumIn() - 1)
	isPtr := false
	if argType.Kind() == reflect.Ptr {
		argType = argType.Elem()
		isPtr = true
	}

	argVal := reflect.New(argType)

	// Unmarshal JSON into the struct
	if err := json.Unmarshal(argsJSON, argVal.Interface()); err != nil {
		return "", &MalformedArgumentsError{Tool: name, Err: err}
	}

	// Call the function
	var args []reflect.Value
	if takesContext {
		args = append(args, reflect.ValueOf(ctx))
	}
	if isPtr {
		args = append(args, argVal)
	} else {
		args = append(args, argVal.Elem())
	}

	results := fnVal.Call(args)

	// Handle return values
	// Expected: (string, error) or (error)
	var output string
	var err error

	if len(results) == 1 {
		// (error)
		if !results[0].IsNil() {
			err = results[0].Interface().(error)
		}
	} else if len(results) == 2 {
		// (string, error)
		output = results[0].String()
		if !results[1].IsNil() {
			err = results[1].Interface().(error)
		}
	} else {
		return "", fmt.Errorf("unexpected number of return values: %d", len(results))
	}

	return output, err
}

func generateDefinition(name, description string, fn interface{}) (*llm.ToolDefinition, error) {
	t := reflect.TypeOf(fn)
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %s", t.Kind())
	}

	switch t.NumIn() {
	case 1:
	case 2:
		if !t.In(0).Implements(contextType) {
			return nil, fmt.Errorf("two-argument function must take a context.Context first")
		}
	default:
		return nil, fmt.Errorf("function must take one argument, optionally preceded by a context")
	}

	argType := t.In(t.NumIn() - 1)
	if argType.Kind() == reflect.Ptr {
		argType = argType.Elem()
	}
	if argType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("function argument must be a struct or pointer to struct")
	}

	properties := make(map[string]interface{})
	required := []string{}

	for i := 0; i < argType.NumField(); i++ {
		field := argType.Field(i)
		jsonTag := field.Tag.Get("json")
		if jsonTag == "" {
			jsonTag = field.Name
		}
		// Handle "name,omitempty"
		parts := strings.Split(jsonTag, ",")
		fieldName := parts[0]

		descTag := field.Tag.Get("description")

		prop := map[string]interface{}{
			"type": goTypeToJSONType(field.Type),
		}
		if descTag != "" {
			prop["description"] = descTag
		}

		properties[fieldName] = prop
		required = append(required, fieldName)
	}

	params := map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}

	return &llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}, nil
}

func goTypeToJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	default:
		return "string" // Fallback
	}
}
