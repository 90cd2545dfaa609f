package tool

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
)

// ValidateArgs checks tool arguments against the declared parameter
// schema before execution. A declaration without parameters accepts
// anything; schema violations come back as InvalidArguments so they can
// be surfaced to the model as a structured tool result.
func ValidateArgs(def model.ToolDefinition, args map[string]any) error {
	if len(def.Parameters) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def.Parameters),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return host.WrapCodedError(host.ErrorCodeInvalidArguments, err, "tool %q: bad parameter schema", def.Name)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		details = append(details, re.String())
	}
	return host.NewCodedError(host.ErrorCodeInvalidArguments, "tool %q: %s", def.Name, strings.Join(details, "; "))
}
