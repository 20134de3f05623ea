package openai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"

	"dclass/domain/core/aggregates"
	"dclass/domain/core/entities"
)

// generatedDiagram is the structured output requested from the model.
// Relations refer to classes by name; ids are assigned locally.
type generatedDiagram struct {
	Classes   []generatedClass    `json:"classes" jsonschema:"description=Every class of the diagram"`
	Notes     []string            `json:"notes" jsonschema:"description=Free text notes to place next to the classes"`
	Relations []generatedRelation `json:"relations" jsonschema:"description=Relationships between classes referenced by name"`
}

type generatedClass struct {
	Name       string               `json:"name"`
	Attributes []generatedAttribute `json:"attributes"`
	Methods    []generatedMethod    `json:"methods"`
}

type generatedAttribute struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Visibility string `json:"visibility" jsonschema:"enum=public,enum=private,enum=protected"`
}

type generatedMethod struct {
	Name       string `json:"name"`
	Parameters string `json:"parameters" jsonschema:"description=Comma separated list such as id: int"`
	ReturnType string `json:"returnType"`
	Visibility string `json:"visibility" jsonschema:"enum=public,enum=private,enum=protected"`
}

type generatedRelation struct {
	Source             string `json:"source" jsonschema:"description=Name of the source class"`
	Target             string `json:"target" jsonschema:"description=Name of the target class"`
	Type               string `json:"type" jsonschema:"enum=association,enum=many-to-many,enum=aggregation,enum=composition,enum=inheritance,enum=realization,enum=dependency"`
	SourceMultiplicity string `json:"sourceMultiplicity"`
	TargetMultiplicity string `json:"targetMultiplicity"`
	Label              string `json:"label"`
}

// schemaFor reflects a strict JSON schema for the type of value
func schemaFor(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflector.Reflect(reflect.New(t).Interface())
}

// decodeLenient parses model output, repairing it when it is not valid JSON.
// Output wrapped in a markdown fence or encoded as a JSON string is accepted.
func decodeLenient(input string, out any) error {
	input = stripFence(strings.TrimSpace(input))
	if input == "" {
		return fmt.Errorf("empty model output")
	}
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var inner string
	if err := json.Unmarshal([]byte(input), &inner); err == nil {
		inner = strings.TrimSpace(inner)
		if err := json.Unmarshal([]byte(inner), out); err == nil {
			return nil
		}
		input = inner
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal after repair: %w", err)
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// grid layout for generated nodes
const (
	gridColumns = 4
	gridDX      = 320
	gridDY      = 260
)

func gridPosition(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"x":%d,"y":%d}`, (i%gridColumns)*gridDX, (i/gridColumns)*gridDY))
}

// toModel converts the structured output into a diagram model.
// Classes are matched case-insensitively by name; relations naming an unknown
// class are skipped and counted.
func (g generatedDiagram) toModel() (aggregates.Model, int, error) {
	if len(g.Classes) == 0 {
		return aggregates.Model{}, 0, fmt.Errorf("model returned no classes")
	}

	nodes := make([]entities.Node, 0, len(g.Classes)+len(g.Notes))
	byName := make(map[string]string, len(g.Classes))

	for _, c := range g.Classes {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := byName[key]; dup {
			continue
		}
		n, _ := entities.NewNode(entities.NodeKindClass)
		n.Position = gridPosition(len(nodes))
		n.Data.Label = name
		for _, a := range c.Attributes {
			n.Data.Attributes = append(n.Data.Attributes, entities.Attribute{
				Name:       a.Name,
				Type:       a.Type,
				Visibility: visibility(a.Visibility),
			}.WithDefaults())
		}
		for _, m := range c.Methods {
			n.Data.Methods = append(n.Data.Methods, entities.Method{
				Name:       m.Name,
				Parameters: m.Parameters,
				ReturnType: m.ReturnType,
				Visibility: visibility(m.Visibility),
			}.WithDefaults())
		}
		byName[key] = n.ID
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return aggregates.Model{}, 0, fmt.Errorf("model returned only unnamed classes")
	}

	for _, text := range g.Notes {
		if strings.TrimSpace(text) == "" {
			continue
		}
		n, _ := entities.NewNode(entities.NodeKindNote)
		n.Position = gridPosition(len(nodes))
		n.Data.Content = text
		nodes = append(nodes, n)
	}

	var edges []entities.Edge
	skipped := 0
	for _, r := range g.Relations {
		src, okSrc := byName[strings.ToLower(strings.TrimSpace(r.Source))]
		dst, okDst := byName[strings.ToLower(strings.TrimSpace(r.Target))]
		rel, okRel := entities.ParseRelationType(r.Type)
		if !okRel {
			rel = entities.RelationAssociation
		}
		if !okSrc || !okDst || (src == dst && !rel.AllowsSelfLoop()) {
			skipped++
			continue
		}
		edges = append(edges, entities.NewEdge(src, dst, rel, relationData(r)))
	}

	model := aggregates.NewModel().SetNodes(nodes).SetEdges(edges)
	return model, skipped, nil
}

func relationData(r generatedRelation) map[string]any {
	data := map[string]any{}
	if r.SourceMultiplicity != "" {
		data["sourceMultiplicity"] = r.SourceMultiplicity
	}
	if r.TargetMultiplicity != "" {
		data["targetMultiplicity"] = r.TargetMultiplicity
	}
	if r.Label != "" {
		data["label"] = r.Label
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func visibility(s string) entities.Visibility {
	v := entities.Visibility(strings.ToLower(strings.TrimSpace(s)))
	if v.IsValid() {
		return v
	}
	return ""
}
