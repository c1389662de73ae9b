package backends

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/menu-lens/server/internal/analysis/model"
)

// responseSchema describes the AnalysisResponse JSON the prompts ask for.
// Handing it to the chat model switches the call into JSON output mode.
func responseSchema() *openapi3.Schema {
	result := openapi3.NewObjectSchema().
		WithProperty("itemId", openapi3.NewStringSchema()).
		WithProperty("itemName", openapi3.NewStringSchema()).
		WithProperty("suitability", openapi3.NewStringSchema().WithEnum(
			string(model.SuitabilityGood),
			string(model.SuitabilityCareful),
			string(model.SuitabilityAvoid),
		)).
		WithProperty("explanation", openapi3.NewStringSchema()).
		WithProperty("questionsToAsk", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("confidence", openapi3.NewFloat64Schema()).
		WithProperty("concerns", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
	result.Required = []string{"itemId", "itemName", "suitability", "explanation", "confidence"}

	resp := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("results", openapi3.NewArraySchema().WithItems(result)).
		WithProperty("confidence", openapi3.NewFloat64Schema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("requestId", openapi3.NewStringSchema()).
		WithProperty("processingTime", openapi3.NewIntegerSchema())
	resp.Required = []string{"success", "results", "confidence", "requestId"}
	return resp
}
