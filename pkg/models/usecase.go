package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Usecase describes one inference task type that a worker implements
type Usecase struct {
	Name           string   `json:"name" yaml:"name"`                       // e.g. object-detection
	Task           string   `json:"task" yaml:"task"`                       // vision, text, audio
	WorkerDir      string   `json:"worker_dir" yaml:"worker_dir"`           // subdirectory under the workers root
	DefaultModel   string   `json:"default_model" yaml:"default_model"`     // used when the request omits a model
	Models         []string `json:"models,omitempty" yaml:"models"`         // selectable models
	RequiresSource bool     `json:"requires_source" yaml:"requires_source"` // must have a video/camera source
	MultiDevice    bool     `json:"multi_device" yaml:"multi_device"`
	MultiStream    bool     `json:"multi_stream" yaml:"multi_stream"`
}

// Catalog is the set of known usecases, keyed by name
type Catalog struct {
	Usecases []Usecase `yaml:"usecases"`
	byName   map[string]*Usecase
}

// LoadCatalog reads a usecase catalog from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read usecase catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse usecase catalog: %w", err)
	}
	c.index()
	return &c, nil
}

// DefaultCatalog returns the built-in usecase set, used when no catalog
// file is configured.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Usecases: []Usecase{
			{
				Name: "object-detection", Task: "vision",
				WorkerDir: "object-detection", DefaultModel: "yolo11n",
				Models:         []string{"yolo11n", "yolo11s", "ssdlite-mobilenet-v2"},
				RequiresSource: true, MultiDevice: true, MultiStream: true,
			},
			{
				Name: "image-classification", Task: "vision",
				WorkerDir: "image-classification", DefaultModel: "resnet-18-pytorch",
				Models:         []string{"resnet-18-pytorch", "efficientnet-b0"},
				RequiresSource: true, MultiDevice: true, MultiStream: true,
			},
			{
				Name: "instance-segmentation", Task: "vision",
				WorkerDir: "instance-segmentation", DefaultModel: "yolo11n-seg",
				Models:         []string{"yolo11n-seg"},
				RequiresSource: true, MultiDevice: true, MultiStream: true,
			},
			{
				Name: "text-generation", Task: "text",
				WorkerDir: "text-generation", DefaultModel: "qwen2.5-1.5b-instruct",
				Models:      []string{"qwen2.5-1.5b-instruct", "tinyllama-1.1b-chat"},
				MultiDevice: false, MultiStream: false,
			},
			{
				Name: "automatic-speech-recognition", Task: "audio",
				WorkerDir: "automatic-speech-recognition", DefaultModel: "whisper-base",
				Models:      []string{"whisper-base", "whisper-small"},
				MultiDevice: false, MultiStream: false,
			},
		},
	}
	c.index()
	return c
}

func (c *Catalog) index() {
	c.byName = make(map[string]*Usecase, len(c.Usecases))
	for i := range c.Usecases {
		c.byName[c.Usecases[i].Name] = &c.Usecases[i]
	}
}

// Get returns the usecase with the given name, or nil
func (c *Catalog) Get(name string) *Usecase {
	if c.byName == nil {
		c.index()
	}
	return c.byName[name]
}

// All returns every usecase in the catalog
func (c *Catalog) All() []Usecase {
	return c.Usecases
}
