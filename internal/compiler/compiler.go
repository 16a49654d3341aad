// Package compiler turns the flat field set posted by the configuration form
// into a job description for the rendering pipeline.
//
// Compilation is a pure function of its input. Malformed scalars fall back
// to their defaults and malformed plugin lists drop their category; only a
// non-object request fails.
package compiler

import (
	"syclopsui/internal/document"
)

const (
	DefaultSteps = 1
	DefaultSeed  = 42

	// GroundName names the ground plugin that floor_object fields point at.
	GroundName = "Ground"
	// CameraFrame is the frame the main camera is mounted on.
	CameraFrame = "camera_link"
	// DefaultObjectFrame is used when an object names no frame.
	DefaultObjectFrame = "iso_object"

	CropClassOffset    = 2
	ObjectClassOffset  = 10
	ScatterClassOffset = 20
)

// Compile builds a job description from raw form fields.
func Compile(raw RawParameters) (document.Document, error) {
	p, err := ParseParameters(raw)
	if err != nil {
		return document.Document{}, err
	}
	return Build(p), nil
}

// CompileBody decodes a request body and compiles it.
func CompileBody(data []byte, contentType string) (document.Document, error) {
	raw, err := DecodeRaw(data, contentType)
	if err != nil {
		return document.Document{}, err
	}
	return Compile(raw)
}

// Build assembles the document for already typed parameters. Every call
// allocates fresh maps and slices.
func Build(p Parameters) document.Document {
	doc := document.Document{
		Steps: p.Steps,
		Seeds: document.Seeds{Numeric: p.Seeds.Numeric, Render: p.Seeds.Render},
		Render: document.Render{
			Device:             p.Render.Device,
			Hardware:           p.Render.Hardware,
			DenoisingEnabled:   p.Render.DenoisingEnabled,
			DenoisingAlgorithm: p.Render.DenoisingAlgorithm,
		},
		Frames: defaultFrames(),
		Scene: document.Scene{
			Ground: []document.GroundPlugin{{
				Name:    GroundName,
				Size:    p.Ground.Size,
				Texture: p.Ground.Texture,
				ClassID: 1,
			}},
			Environment: []document.EnvironmentPlugin{{
				Type:             "hdri",
				EnvironmentImage: document.Selection{RandomSelection: []string{p.Environment}},
			}},
		},
		Sensors: document.Sensors{Cameras: []document.Camera{mainCamera(p.Camera)}},
	}

	for _, c := range p.Crops {
		doc.Scene.Crops = append(doc.Scene.Crops, cropPlugin(c))
	}
	for _, o := range p.Objects {
		doc.Scene.Objects = append(doc.Scene.Objects, objectPlugin(o))
		bindFrame(doc.Frames, o.FrameID)
	}
	for _, s := range p.Scatters {
		doc.Scene.Scatters = append(doc.Scene.Scatters, scatterPlugin(s))
	}
	return doc
}

func defaultFrames() document.Frames {
	return document.Frames{
		document.RootFrame: {
			Location: document.Fixed(0, 0, 0),
			Rotation: document.Fixed(0, 0, 0),
			Children: document.Frames{
				CameraFrame: {
					Location: document.Linear(document.Vec3{-8, -12, 1}, document.Vec3{0.5, 0.5, 0.2}),
					Rotation: document.Normal(document.Vec3{1.3, 0, 0}, document.Vec3{0.05, 0.05, 0.05}),
				},
			},
		},
	}
}

// ObjectFrame is the frame injected for an object whose frame_id is not
// defined: upright, anywhere on a 40x40 m patch around the origin.
func ObjectFrame() *document.Frame {
	return &document.Frame{
		Location: document.Uniform(document.Vec3{-20, -20, 0}, document.Vec3{20, 20, 0}),
		Rotation: document.Fixed(0, 0, 0),
	}
}

// bindFrame makes sure name resolves in frames.
func bindFrame(frames document.Frames, name string) {
	if _, ok := frames.Lookup(name); ok {
		return
	}
	root := frames[document.RootFrame]
	if root.Children == nil {
		root.Children = document.Frames{}
	}
	root.Children[name] = ObjectFrame()
}

func mainCamera(c CameraParams) document.Camera {
	return document.Camera{
		Name:        "main_camera",
		FrameID:     CameraFrame,
		Resolution:  []int{c.Width, c.Height},
		FocalLength: c.FocalLength,
		SensorWidth: c.SensorWidth,
		Exposure:    c.Exposure,
		Gamma:       c.Gamma,
		Outputs: document.CameraOutputs{
			RGB: []document.RGBOutput{{Samples: 2, DebugBreakpoint: true, ID: "main_cam_rgb"}},
			PixelAnnotation: []document.PixelAnnotationOutput{{
				SemanticSegmentation: document.OutputID{ID: "main_cam_semantic"},
				InstanceSegmentation: document.OutputID{ID: "main_cam_instance"},
			}},
		},
	}
}

func cropPlugin(c CropParams) document.CropPlugin {
	return document.CropPlugin{
		Name:                   c.Name,
		Models:                 []string{c.Model},
		FloorObject:            GroundName,
		CropAngle:              c.CropAngle,
		RowDistance:            c.RowDistance,
		RowStandardDeviation:   c.RowStandardDeviation,
		PlantDistance:          c.PlantDistance,
		PlantStandardDeviation: c.PlantStandardDeviation,
		ScaleStandardDeviation: c.ScaleStandardDeviation,
		ClassID:                c.ClassID,
		Seed:                   c.Seed,
		ClassIDOffset:          copyOffsets(c.ClassIDOffset),
	}
}

func objectPlugin(o ObjectParams) document.ObjectPlugin {
	rec := document.ObjectPlugin{
		Name:               o.Name,
		Models:             []string{o.Model},
		FrameID:            o.FrameID,
		ClassID:            o.ClassID,
		PlaceOnGround:      o.PlaceOnGround,
		MaxTextureSize:     copyInt(o.MaxTextureSize),
		DecimateMeshFactor: copyFloat(o.DecimateMeshFactor),
	}
	if o.PlaceOnGround {
		rec.FloorObject = floorObject(o.FloorObject)
	}
	return rec
}

func scatterPlugin(s ScatterParams) document.ScatterPlugin {
	rec := document.ScatterPlugin{
		Name:                   s.Name,
		Models:                 []string{s.Model},
		DensityMax:             s.DensityMax,
		DistanceMin:            s.DistanceMin,
		ScaleStandardDeviation: s.ScaleStandardDeviation,
		Seed:                   s.Seed,
		ClassID:                s.ClassID,
		AlignToNormal:          s.AlignToNormal,
		MaxTextureSize:         copyInt(s.MaxTextureSize),
		DecimateMeshFactor:     copyFloat(s.DecimateMeshFactor),
	}
	if s.PlaceOnGround {
		rec.FloorObject = floorObject(s.FloorObject)
	}
	return rec
}

func floorObject(name string) *string {
	if name == "" {
		name = GroundName
	}
	return &name
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyOffsets(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
