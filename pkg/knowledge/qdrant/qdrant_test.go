package qdrant

import (
	"reflect"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"string", "use case", "use case"},
		{"bool", true, true},
		{"int", 42, int64(42)},
		{"double", 0.5, 0.5},
		{
			"string list",
			[]string{"2023", "2024"},
			[]interface{}{"2023", "2024"},
		},
		{
			"mixed list",
			[]interface{}{"Crops", "Climate-Smart Agriculture"},
			[]interface{}{"Crops", "Climate-Smart Agriculture"},
		},
		{
			"string map",
			map[string]string{"Appraisal Document": "https://example.org/pad.pdf"},
			map[string]interface{}{"Appraisal Document": "https://example.org/pad.pdf"},
		},
		{
			"map",
			map[string]interface{}{
				"Appraisal Document": "https://example.org/pad.pdf",
				"Final Report":       "https://example.org/report.pdf",
			},
			map[string]interface{}{
				"Appraisal Document": "https://example.org/pad.pdf",
				"Final Report":       "https://example.org/report.pdf",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := fromValue(toValue(tc.in))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("round trip of %v yielded %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDocFromPayload(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"content":       qdrant.NewValueString("A digital extension service."),
		payloadRecordID: qdrant.NewValueString("U10001"),
		"title":         qdrant.NewValueString("Digital Extension for Rice Farmers"),
		"document": toValue(map[string]interface{}{
			"Appraisal Document": "https://example.org/pad.pdf",
		}),
	}

	doc := docFromPayload(payload)

	if doc.ID != "U10001" {
		t.Errorf("unexpected id %q", doc.ID)
	}
	if doc.Content != "A digital extension service." {
		t.Errorf("unexpected content %q", doc.Content)
	}
	links, ok := doc.Metadata["document"].(map[string]interface{})
	if !ok {
		t.Fatalf("document metadata came back as %T, want a map", doc.Metadata["document"])
	}
	if links["Appraisal Document"] != "https://example.org/pad.pdf" {
		t.Errorf("unexpected link map: %v", links)
	}
}
