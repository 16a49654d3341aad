package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"syclopsui/internal/coerce"
)

// ErrInvalidInput is returned when the request is not a flat field mapping.
var ErrInvalidInput = errors.New("invalid input: expected an object of fields")

// RawParameters is the flat, loosely typed field set posted by the form.
type RawParameters map[string]any

// Parameters is the typed view of RawParameters. Every scalar is already
// defaulted; optional plugin fields are nil when absent.
type Parameters struct {
	Steps       int
	Seeds       SeedParams
	Render      RenderParams
	Camera      CameraParams
	Ground      GroundParams
	Environment string
	Crops       []CropParams
	Objects     []ObjectParams
	Scatters    []ScatterParams
}

type SeedParams struct {
	Numeric int
	Render  int
}

type RenderParams struct {
	Device             string
	Hardware           string
	DenoisingEnabled   bool
	DenoisingAlgorithm string
}

type CameraParams struct {
	Width       int
	Height      int
	FocalLength float64
	SensorWidth float64
	Exposure    float64
	Gamma       float64
}

type GroundParams struct {
	Size    int
	Texture string
}

type CropParams struct {
	Name                   string
	Model                  string
	CropAngle              float64
	RowDistance            float64
	RowStandardDeviation   float64
	PlantDistance          float64
	PlantStandardDeviation float64
	ScaleStandardDeviation float64
	ClassID                int
	Seed                   int
	ClassIDOffset          map[string]int
}

type ObjectParams struct {
	Name               string
	Model              string
	FrameID            string
	ClassID            int
	PlaceOnGround      bool
	FloorObject        string
	MaxTextureSize     *int
	DecimateMeshFactor *float64
}

type ScatterParams struct {
	Name                   string
	Model                  string
	PlaceOnGround          bool
	FloorObject            string
	DensityMax             float64
	DistanceMin            float64
	ScaleStandardDeviation float64
	Seed                   int
	ClassID                int
	AlignToNormal          bool
	MaxTextureSize         *int
	DecimateMeshFactor     *float64
}

// DecodeRaw reads a request body as JSON or as a url-encoded form.
func DecodeRaw(data []byte, contentType string) (RawParameters, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		raw := make(RawParameters, len(values))
		for k, v := range values {
			if len(v) > 0 {
				raw[k] = v[0]
			}
		}
		return raw, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, ErrInvalidInput
	}
	return RawParameters(obj), nil
}

// ParseParameters applies field defaults to raw.
func ParseParameters(raw RawParameters) (Parameters, error) {
	if raw == nil {
		return Parameters{}, ErrInvalidInput
	}
	f := coerce.Fields(raw)
	p := Parameters{
		Steps: coerce.Int(f, "steps", DefaultSteps),
		Seeds: SeedParams{
			Numeric: coerce.Int(f, "numpy_seed", DefaultSeed),
			Render:  coerce.Int(f, "cycles_seed", DefaultSeed),
		},
		Render: RenderParams{
			Device:             coerce.String(f, "render_device", "GPU"),
			Hardware:           coerce.String(f, "render_hardware", "CUDA"),
			DenoisingEnabled:   coerce.Bool(f, "denoising_enabled", true),
			DenoisingAlgorithm: coerce.String(f, "denoising_algorithm", "OPENIMAGEDENOISE"),
		},
		Camera: CameraParams{
			Width:       coerce.Int(f, "resolution_width", 2048),
			Height:      coerce.Int(f, "resolution_height", 2048),
			FocalLength: coerce.Float(f, "focal_length", 40),
			SensorWidth: coerce.Float(f, "sensor_width", 35),
			Exposure:    coerce.Float(f, "exposure", 0.3),
			Gamma:       coerce.Float(f, "gamma", 1.4),
		},
		Ground: GroundParams{
			Size:    coerce.Int(f, "ground_size", 50),
			Texture: coerce.String(f, "ground_texture", "Example Assets/Muddy Dry Ground"),
		},
		Environment: coerce.String(f, "environment", "Assets_own/Field"),
	}
	if p.Steps < 1 {
		p.Steps = DefaultSteps
	}
	for i, el := range parsePluginList(raw["crops"]) {
		p.Crops = append(p.Crops, cropParams(i, el))
	}
	for i, el := range parsePluginList(raw["objects"]) {
		p.Objects = append(p.Objects, objectParams(i, el))
	}
	for i, el := range parsePluginList(raw["scatters"]) {
		p.Scatters = append(p.Scatters, scatterParams(i, el))
	}
	return p, nil
}

// parsePluginList decodes a plugin list field. The field may hold JSON text
// or an already decoded list. Anything that is not a list of objects means
// the category is absent; the error is not reported.
func parsePluginList(v any) []coerce.Fields {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(t), &items); err != nil {
			return nil
		}
	case []any:
		items = t
	default:
		return nil
	}
	out := make([]coerce.Fields, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		out = append(out, coerce.Fields(obj))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cropParams(i int, f coerce.Fields) CropParams {
	return CropParams{
		Name:                   coerce.String(f, "name", fmt.Sprintf("crop_%d", i)),
		Model:                  coerce.String(f, "model", "Assets_own/bbch_15"),
		CropAngle:              coerce.Float(f, "crop_angle", 0),
		RowDistance:            coerce.Float(f, "row_distance", 0.8),
		RowStandardDeviation:   coerce.Float(f, "row_standard_deviation", 0.32),
		PlantDistance:          coerce.Float(f, "plant_distance", 0.4),
		PlantStandardDeviation: coerce.Float(f, "plant_standard_deviation", 0.2),
		ScaleStandardDeviation: coerce.Float(f, "scale_standard_deviation", 0.5),
		ClassID:                coerce.Int(f, "class_id", i+CropClassOffset),
		Seed:                   coerce.Int(f, "seed", i+1),
		ClassIDOffset:          classIDOffset(f["class_id_offset"]),
	}
}

func objectParams(i int, f coerce.Fields) ObjectParams {
	return ObjectParams{
		Name:               coerce.String(f, "name", fmt.Sprintf("object_%d", i)),
		Model:              coerce.String(f, "model", "Assets_own/ISO Object"),
		FrameID:            coerce.String(f, "frame_id", DefaultObjectFrame),
		ClassID:            coerce.Int(f, "class_id", i+ObjectClassOffset),
		PlaceOnGround:      coerce.Bool(f, "place_on_ground", false),
		FloorObject:        coerce.String(f, "floor_object", GroundName),
		MaxTextureSize:     coerce.OptionalInt(f, "max_texture_size"),
		DecimateMeshFactor: coerce.OptionalFloat(f, "decimate_mesh_factor"),
	}
}

func scatterParams(i int, f coerce.Fields) ScatterParams {
	return ScatterParams{
		Name:                   coerce.String(f, "name", fmt.Sprintf("scatter_%d", i)),
		Model:                  coerce.String(f, "model", "Example Assets/Plain Weeds"),
		PlaceOnGround:          coerce.Bool(f, "place_on_ground", true),
		FloorObject:            coerce.String(f, "floor_object", GroundName),
		DensityMax:             coerce.Float(f, "density_max", 10),
		DistanceMin:            coerce.Float(f, "distance_min", 0.1),
		ScaleStandardDeviation: coerce.Float(f, "scale_standard_deviation", 0.2),
		Seed:                   coerce.Int(f, "seed", i+1),
		ClassID:                coerce.Int(f, "class_id", i+ScatterClassOffset),
		AlignToNormal:          coerce.Bool(f, "align_to_normal", true),
		MaxTextureSize:         coerce.OptionalInt(f, "max_texture_size"),
		DecimateMeshFactor:     coerce.OptionalFloat(f, "decimate_mesh_factor"),
	}
}

// classIDOffset keeps the non-zero integer entries of a material -> offset
// mapping. Anything else is treated as absent.
func classIDOffset(v any) map[string]int {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	f := coerce.Fields(m)
	out := make(map[string]int, len(m))
	for k := range m {
		if n := coerce.OptionalInt(f, k); n != nil {
			out[k] = *n
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
