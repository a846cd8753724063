package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kaplanlabs/go-dsm/model"
	"github.com/kaplanlabs/go-dsm/tensor"
)

// Format defines the checkpoint serialization format.
type Format int

const (
	FormatJSON Format = iota
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Checkpoint represents a complete model state including weights and training
// metadata.
type Checkpoint struct {
	ModelSpec ModelSpec      `json:"model_spec"`
	Weights   []WeightTensor `json:"weights"`

	TrainingState TrainingState `json:"training_state"`

	Metadata Metadata `json:"metadata"`
}

// ModelSpec captures the architecture needed to rebuild the model before
// loading weights into it.
type ModelSpec struct {
	InputDim     int    `json:"input_dim"`
	K            int    `json:"k"`
	Hidden       []int  `json:"hidden,omitempty"`
	Distribution string `json:"distribution"`
	Optimizer    string `json:"optimizer"`
}

// WeightTensor represents a model parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// TrainingState captures the training progress at checkpoint time.
type TrainingState struct {
	Epoch          int     `json:"epoch"`
	LearningRate   float64 `json:"learning_rate"`
	ValidationCost float64 `json:"validation_cost"`
}

// Metadata contains checkpoint identification metadata.
type Metadata struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Saver handles saving and loading model checkpoints in a given format.
type Saver struct {
	format Format
}

// NewSaver creates a new checkpoint saver for the specified format.
func NewSaver(format Format) *Saver {
	return &Saver{format: format}
}

// Save writes a complete model checkpoint to path.
func (s *Saver) Save(checkpoint *Checkpoint, path string) error {
	// Ensure metadata is set
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-dsm"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}
	if checkpoint.Metadata.ID == "" {
		checkpoint.Metadata.ID = uuid.NewString()
	}

	switch s.format {
	case FormatJSON:
		return s.saveJSON(checkpoint, path)
	case FormatBinary:
		return s.saveBinary(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
}

// Load reads a model checkpoint from path.
func (s *Saver) Load(path string) (*Checkpoint, error) {
	switch s.format {
	case FormatJSON:
		return s.loadJSON(path)
	case FormatBinary:
		return s.loadBinary(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
}

func (s *Saver) saveJSON(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

func (s *Saver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return &checkpoint, nil
}

// saveBinary encodes the checkpoint as a protobuf Struct. The checkpoint goes
// through its JSON form first so both formats stay field-compatible.
func (s *Saver) saveBinary(checkpoint *Checkpoint, path string) error {
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return errors.Wrap(err, "failed to serialize checkpoint")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return errors.Wrap(err, "failed to normalize checkpoint fields")
	}

	pb, err := structpb.NewStruct(fields)
	if err != nil {
		return errors.Wrap(err, "failed to build checkpoint message")
	}

	data, err := proto.Marshal(pb)
	if err != nil {
		return errors.Wrap(err, "failed to marshal checkpoint message")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write checkpoint file")
	}
	return nil
}

func (s *Saver) loadBinary(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint file")
	}

	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal checkpoint message")
	}

	raw, err := json.Marshal(pb.AsMap())
	if err != nil {
		return nil, errors.Wrap(err, "failed to normalize checkpoint fields")
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(raw, &checkpoint); err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return &checkpoint, nil
}

// FromModel builds a checkpoint from the model's current parameters.
func FromModel(m *model.DeepSurvivalMachines, state TrainingState) (*Checkpoint, error) {
	names := m.ParameterNames()
	params := m.Parameters()

	weights := make([]WeightTensor, len(params))
	for i, p := range params {
		data, err := p.Float64Data()
		if err != nil {
			return nil, fmt.Errorf("failed to extract weight %s: %v", names[i], err)
		}
		copied := make([]float64, len(data))
		copy(copied, data)

		weights[i] = WeightTensor{
			Name:  names[i],
			Shape: append([]int(nil), p.Shape...),
			Data:  copied,
		}
	}

	return &Checkpoint{
		ModelSpec: ModelSpec{
			InputDim:     m.InputDim,
			K:            m.K,
			Hidden:       append([]int(nil), m.Hidden...),
			Distribution: m.Dist,
			Optimizer:    m.Optim,
		},
		Weights:       weights,
		TrainingState: state,
	}, nil
}

// RestoreModel rebuilds a model from a checkpoint and loads its weights. The
// returned model is in double precision, ready for further training or
// inference.
func RestoreModel(checkpoint *Checkpoint) (*model.DeepSurvivalMachines, error) {
	spec := checkpoint.ModelSpec
	m, err := model.New(spec.InputDim, spec.K, spec.Hidden, spec.Distribution, spec.Optimizer)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild model: %v", err)
	}
	if err := m.Double(); err != nil {
		return nil, fmt.Errorf("failed to convert model: %v", err)
	}

	names := m.ParameterNames()
	params := m.Parameters()
	if len(checkpoint.Weights) != len(params) {
		return nil, fmt.Errorf("checkpoint has %d weights, model has %d parameters", len(checkpoint.Weights), len(params))
	}

	for i, w := range checkpoint.Weights {
		if w.Name != names[i] {
			return nil, fmt.Errorf("weight %d name mismatch: checkpoint %q, model %q", i, w.Name, names[i])
		}
		if len(w.Data) != params[i].NumElems {
			return nil, fmt.Errorf("weight %s has %d values, parameter needs %d", w.Name, len(w.Data), params[i].NumElems)
		}
		restored, err := tensor.NewTensor(w.Shape, tensor.Float64, w.Data)
		if err != nil {
			return nil, fmt.Errorf("weight %s is malformed: %v", w.Name, err)
		}
		if err := params[i].SetData(restored.Data); err != nil {
			return nil, fmt.Errorf("failed to restore weight %s: %v", w.Name, err)
		}
	}
	return m, nil
}
