// Package document models the job description consumed by the rendering
// pipeline. Go field names follow the sections of a compiled document, the
// YAML keys follow the pipeline's file format and must not change.
package document

// Document is a compiled job description.
type Document struct {
	Steps   int     `yaml:"steps"`
	Seeds   Seeds   `yaml:"seeds"`
	Render  Render  `yaml:",inline"`
	Frames  Frames  `yaml:"transformations"`
	Scene   Scene   `yaml:"scene"`
	Sensors Sensors `yaml:"sensor"`
}

// Seeds holds the named randomness streams.
type Seeds struct {
	Numeric int `yaml:"numpy"`
	Render  int `yaml:"cycles"`
}

// Render selects the device and denoiser.
type Render struct {
	Device             string `yaml:"render_device"`
	Hardware           string `yaml:"render_hardware"`
	DenoisingEnabled   bool   `yaml:"denoising_enabled"`
	DenoisingAlgorithm string `yaml:"denoising_algorithm"`
}

// RootFrame is the name of the frame every other frame hangs from.
const RootFrame = "map"

// Frame is a named coordinate frame.
type Frame struct {
	Location Value  `yaml:"location"`
	Rotation Value  `yaml:"rotation"`
	Children Frames `yaml:"children,omitempty"`
}

// Frames maps frame names to frames.
type Frames map[string]*Frame

// Lookup finds a frame by name anywhere in the tree.
func (f Frames) Lookup(name string) (*Frame, bool) {
	if fr, ok := f[name]; ok && fr != nil {
		return fr, true
	}
	for _, fr := range f {
		if fr == nil {
			continue
		}
		if found, ok := fr.Children.Lookup(name); ok {
			return found, true
		}
	}
	return nil, false
}

// Scene lists plugin instances per category. The dynamic categories are
// omitted from the file when empty.
type Scene struct {
	Ground      []GroundPlugin      `yaml:"syclops_plugin_ground"`
	Environment []EnvironmentPlugin `yaml:"syclops_plugin_environment"`
	Crops       []CropPlugin        `yaml:"syclops_plugin_crop,omitempty"`
	Objects     []ObjectPlugin      `yaml:"syclops_plugin_object,omitempty"`
	Scatters    []ScatterPlugin     `yaml:"syclops_plugin_scatter,omitempty"`
}

type GroundPlugin struct {
	Name    string `yaml:"name"`
	Size    int    `yaml:"size"`
	Texture string `yaml:"texture"`
	ClassID int    `yaml:"class_id"`
}

type EnvironmentPlugin struct {
	Type             string    `yaml:"type"`
	EnvironmentImage Selection `yaml:"environment_image"`
}

// Selection lets the pipeline pick one of several assets per step.
type Selection struct {
	RandomSelection []string `yaml:"random_selection"`
}

type CropPlugin struct {
	Name                   string         `yaml:"name"`
	Models                 []string       `yaml:"models"`
	FloorObject            string         `yaml:"floor_object"`
	CropAngle              float64        `yaml:"crop_angle"`
	RowDistance            float64        `yaml:"row_distance"`
	RowStandardDeviation   float64        `yaml:"row_standard_deviation"`
	PlantDistance          float64        `yaml:"plant_distance"`
	PlantStandardDeviation float64        `yaml:"plant_standard_deviation"`
	ScaleStandardDeviation float64        `yaml:"scale_standard_deviation"`
	ClassID                int            `yaml:"class_id"`
	Seed                   int            `yaml:"seed"`
	ClassIDOffset          map[string]int `yaml:"class_id_offset,omitempty"`
}

type ObjectPlugin struct {
	Name               string   `yaml:"name"`
	Models             []string `yaml:"models"`
	FrameID            string   `yaml:"frame_id"`
	ClassID            int      `yaml:"class_id"`
	PlaceOnGround      bool     `yaml:"place_on_ground"`
	FloorObject        *string  `yaml:"floor_object,omitempty"`
	MaxTextureSize     *int     `yaml:"max_texture_size,omitempty"`
	DecimateMeshFactor *float64 `yaml:"decimate_mesh_factor,omitempty"`
}

type ScatterPlugin struct {
	Name                   string   `yaml:"name"`
	Models                 []string `yaml:"models"`
	FloorObject            *string  `yaml:"floor_object,omitempty"`
	DensityMax             float64  `yaml:"density_max"`
	DistanceMin            float64  `yaml:"distance_min"`
	ScaleStandardDeviation float64  `yaml:"scale_standard_deviation"`
	Seed                   int      `yaml:"seed"`
	ClassID                int      `yaml:"class_id"`
	AlignToNormal          bool     `yaml:"align_to_normal"`
	MaxTextureSize         *int     `yaml:"max_texture_size,omitempty"`
	DecimateMeshFactor     *float64 `yaml:"decimate_mesh_factor,omitempty"`
}

// Sensors lists sensors per kind.
type Sensors struct {
	Cameras []Camera `yaml:"syclops_sensor_camera"`
}

type Camera struct {
	Name        string        `yaml:"name"`
	FrameID     string        `yaml:"frame_id"`
	Resolution  []int         `yaml:"resolution"`
	FocalLength float64       `yaml:"focal_length"`
	SensorWidth float64       `yaml:"sensor_width"`
	Exposure    float64       `yaml:"exposure"`
	Gamma       float64       `yaml:"gamma"`
	Outputs     CameraOutputs `yaml:"outputs"`
}

type CameraOutputs struct {
	RGB             []RGBOutput             `yaml:"syclops_output_rgb"`
	PixelAnnotation []PixelAnnotationOutput `yaml:"syclops_output_pixel_annotation"`
}

type RGBOutput struct {
	Samples         int    `yaml:"samples"`
	DebugBreakpoint bool   `yaml:"debug_breakpoint"`
	ID              string `yaml:"id"`
}

type PixelAnnotationOutput struct {
	SemanticSegmentation OutputID `yaml:"semantic_segmentation"`
	InstanceSegmentation OutputID `yaml:"instance_segmentation"`
}

type OutputID struct {
	ID string `yaml:"id"`
}
