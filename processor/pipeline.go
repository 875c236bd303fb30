package processor

import (
	"bytes"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/cli-runtime/pkg/printers"
	"sigs.k8s.io/yaml"
)

type Pipeline struct {
	processors []Processor
}

func NewPipeline(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process runs every processor in order and stops as soon as one drops the object.
func (p *Pipeline) Process(obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var err error
	for _, pr := range p.processors {
		obj, err = pr.Process(obj)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			return nil, nil
		}
	}
	return obj, nil
}

// Decode reads a single object printed by kubectl in YAML or JSON.
func Decode(data []byte) (*unstructured.Unstructured, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode object")
	}
	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(js); err != nil {
		return nil, errors.Wrap(err, "decode object")
	}
	return obj, nil
}

func printerFor(format string) (printers.ResourcePrinter, error) {
	switch format {
	case "yaml":
		return &printers.YAMLPrinter{}, nil
	case "json":
		return &printers.JSONPrinter{}, nil
	default:
		return nil, errors.Errorf("unsupported output format %q", format)
	}
}

// Encode prints obj in the given format. A fresh printer is used each time so YAML output never
// carries a document separator.
func Encode(obj *unstructured.Unstructured, format string) ([]byte, error) {
	printer, err := printerFor(format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := printer.PrintObj(obj, &buf); err != nil {
		return nil, errors.Wrapf(err, "print %s/%s", obj.GetKind(), obj.GetName())
	}
	return buf.Bytes(), nil
}

// Transform decodes kubectl output, processes it and encodes the result. A nil result with a nil
// error means the object was dropped.
func (p *Pipeline) Transform(data []byte, format string) ([]byte, error) {
	obj, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, err = p.Process(obj)
	if err != nil || obj == nil {
		return nil, err
	}
	return Encode(obj, format)
}
