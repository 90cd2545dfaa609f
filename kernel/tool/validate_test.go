package tool

import (
	"testing"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
)

func executeDeclaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name: "execute_code",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code":   map[string]any{"type": "string"},
				"silent": map[string]any{"type": "boolean"},
			},
			"required": []string{"code"},
		},
	}
}

func TestValidateArgs_Accepts(t *testing.T) {
	err := ValidateArgs(executeDeclaration(), map[string]any{"code": "x := 1", "silent": true})
	if err != nil {
		t.Fatalf("expected valid args, got %v", err)
	}
}

func TestValidateArgs_MissingRequired(t *testing.T) {
	err := ValidateArgs(executeDeclaration(), map[string]any{"silent": true})
	if !host.IsErrorCode(err, host.ErrorCodeInvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
}

func TestValidateArgs_WrongType(t *testing.T) {
	err := ValidateArgs(executeDeclaration(), map[string]any{"code": 42})
	if !host.IsErrorCode(err, host.ErrorCodeInvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
}

func TestValidateArgs_NoSchemaAcceptsAnything(t *testing.T) {
	if err := ValidateArgs(model.ToolDefinition{Name: "free"}, map[string]any{"whatever": 1}); err != nil {
		t.Fatalf("expected schemaless declaration to accept args, got %v", err)
	}
}
