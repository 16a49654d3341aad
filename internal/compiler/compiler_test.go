package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"syclopsui/internal/document"
)

func TestCompileScenario(t *testing.T) {
	doc, err := Compile(RawParameters{
		"steps":   "3",
		"crops":   "[]",
		"objects": `[{"name":"x","frame_id":"f1"}]`,
	})
	require.NoError(t, err)
	require.Equal(t, 3, doc.Steps)
	require.Nil(t, doc.Scene.Crops)
	require.Len(t, doc.Scene.Objects, 1)
	require.Equal(t, "x", doc.Scene.Objects[0].Name)
	require.Equal(t, "f1", doc.Scene.Objects[0].FrameID)

	f1, ok := doc.Frames[document.RootFrame].Children["f1"]
	require.True(t, ok, "frame f1 should be injected under map")
	if diff := cmp.Diff(ObjectFrame(), f1); diff != "" {
		t.Fatalf("injected frame (-want +got):\n%s", diff)
	}

	data, err := document.Marshal(doc)
	require.NoError(t, err)
	require.NotContains(t, string(data), "syclops_plugin_crop")
}

func TestCompileDefaults(t *testing.T) {
	doc, err := Compile(RawParameters{})
	require.NoError(t, err)
	require.Equal(t, 1, doc.Steps)
	require.Equal(t, document.Seeds{Numeric: 42, Render: 42}, doc.Seeds)
	require.Equal(t, document.Render{Device: "GPU", Hardware: "CUDA", DenoisingEnabled: true, DenoisingAlgorithm: "OPENIMAGEDENOISE"}, doc.Render)

	cam := doc.Sensors.Cameras[0]
	require.Equal(t, []int{2048, 2048}, cam.Resolution)
	require.Equal(t, 40.0, cam.FocalLength)
	require.Equal(t, 35.0, cam.SensorWidth)
	require.Equal(t, 0.3, cam.Exposure)
	require.Equal(t, 1.4, cam.Gamma)
	require.Equal(t, CameraFrame, cam.FrameID)

	require.Equal(t, 50, doc.Scene.Ground[0].Size)
	require.Equal(t, []string{"Assets_own/Field"}, doc.Scene.Environment[0].EnvironmentImage.RandomSelection)

	camFrame, ok := doc.Frames.Lookup(CameraFrame)
	require.True(t, ok)
	require.Equal(t, document.DistLinear, camFrame.Location.Dist)
	require.Equal(t, document.DistNormal, camFrame.Rotation.Dist)

	require.Nil(t, doc.Scene.Crops)
	require.Nil(t, doc.Scene.Objects)
	require.Nil(t, doc.Scene.Scatters)
}

func TestCompileScalarFallbacks(t *testing.T) {
	doc, err := Compile(RawParameters{
		"steps":             "many",
		"focal_length":      "50.5",
		"resolution_width":  float64(1024),
		"denoising_enabled": "off",
		"render_device":     "CPU",
	})
	require.NoError(t, err)
	require.Equal(t, 1, doc.Steps)
	require.Equal(t, 50.5, doc.Sensors.Cameras[0].FocalLength)
	require.Equal(t, []int{1024, 2048}, doc.Sensors.Cameras[0].Resolution)
	require.False(t, doc.Render.DenoisingEnabled)
	require.Equal(t, "CPU", doc.Render.Device)
}

func TestCompileNonPositiveSteps(t *testing.T) {
	for _, v := range []any{"-3", "0", float64(-1), float64(0), 1e20} {
		doc, err := Compile(RawParameters{"steps": v, "numpy_seed": 1e20})
		require.NoError(t, err)
		require.Equal(t, DefaultSteps, doc.Steps, "steps for %#v", v)
		require.Equal(t, DefaultSeed, doc.Seeds.Numeric, "seed for %#v", v)
	}
}

func TestCompileNilInput(t *testing.T) {
	_, err := Compile(nil)
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestMalformedListsAreAbsent(t *testing.T) {
	for _, v := range []any{"", "[]", "not json", `{"name":"x"}`, `[1, 2]`, `[{"name":"ok"}, "bad"]`, float64(3), nil} {
		doc, err := Compile(RawParameters{"crops": v, "objects": v, "scatters": v})
		require.NoError(t, err)
		require.Nil(t, doc.Scene.Crops, "crops for %#v", v)
		require.Nil(t, doc.Scene.Objects, "objects for %#v", v)
		require.Nil(t, doc.Scene.Scatters, "scatters for %#v", v)

		data, err := document.Marshal(doc)
		require.NoError(t, err)
		out := string(data)
		for _, key := range []string{"syclops_plugin_crop", "syclops_plugin_object", "syclops_plugin_scatter"} {
			require.NotContains(t, out, key)
		}
	}
}

func TestDecodedListsAccepted(t *testing.T) {
	doc, err := Compile(RawParameters{
		"crops": []any{map[string]any{"name": "corn"}},
	})
	require.NoError(t, err)
	require.Len(t, doc.Scene.Crops, 1)
	require.Equal(t, "corn", doc.Scene.Crops[0].Name)
}

func TestCropDefaults(t *testing.T) {
	doc, err := Compile(RawParameters{
		"crops": `[{}, {"name":"beet","class_id":"7","seed":"x","class_id_offset":{"Stem":1,"Leaf":"bad"}}]`,
	})
	require.NoError(t, err)
	require.Len(t, doc.Scene.Crops, 2)

	first := doc.Scene.Crops[0]
	require.Equal(t, "crop_0", first.Name)
	require.Equal(t, []string{"Assets_own/bbch_15"}, first.Models)
	require.Equal(t, GroundName, first.FloorObject)
	require.Equal(t, 0.8, first.RowDistance)
	require.Equal(t, 0.32, first.RowStandardDeviation)
	require.Equal(t, 0.4, first.PlantDistance)
	require.Equal(t, 0.2, first.PlantStandardDeviation)
	require.Equal(t, 0.5, first.ScaleStandardDeviation)
	require.Equal(t, 2, first.ClassID)
	require.Equal(t, 1, first.Seed)
	require.Nil(t, first.ClassIDOffset)

	second := doc.Scene.Crops[1]
	require.Equal(t, "beet", second.Name)
	require.Equal(t, 7, second.ClassID)
	require.Equal(t, 2, second.Seed)
	require.Equal(t, map[string]int{"Stem": 1}, second.ClassIDOffset)

	data, err := document.Marshal(doc)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), "class_id_offset"))
	require.NotContains(t, string(data), "null")
}

func TestObjectFloorObject(t *testing.T) {
	doc, err := Compile(RawParameters{
		"objects": `[
			{"name":"a","place_on_ground":"false","floor_object":"Table"},
			{"name":"b","place_on_ground":"true"},
			{"name":"c","place_on_ground":true,"floor_object":"Table"}
		]`,
	})
	require.NoError(t, err)
	objs := doc.Scene.Objects
	require.Len(t, objs, 3)
	require.Nil(t, objs[0].FloorObject)
	require.NotNil(t, objs[1].FloorObject)
	require.Equal(t, "Ground", *objs[1].FloorObject)
	require.Equal(t, "Table", *objs[2].FloorObject)

	data, err := document.Marshal(doc)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(data), "floor_object"))
}

func TestObjectDefaultsAndFrames(t *testing.T) {
	doc, err := Compile(RawParameters{
		"objects": `[{}, {"frame_id":"camera_link"}, {"frame_id":"map","max_texture_size":"512","decimate_mesh_factor":0.25}, {}]`,
	})
	require.NoError(t, err)
	objs := doc.Scene.Objects
	require.Len(t, objs, 4)
	require.Equal(t, "object_0", objs[0].Name)
	require.Equal(t, []string{"Assets_own/ISO Object"}, objs[0].Models)
	require.Equal(t, DefaultObjectFrame, objs[0].FrameID)
	require.Equal(t, 10, objs[0].ClassID)
	require.Equal(t, 13, objs[3].ClassID)
	require.False(t, objs[0].PlaceOnGround)
	require.Nil(t, objs[0].MaxTextureSize)
	require.Nil(t, objs[0].DecimateMeshFactor)
	require.Equal(t, 512, *objs[2].MaxTextureSize)
	require.Equal(t, 0.25, *objs[2].DecimateMeshFactor)

	children := doc.Frames[document.RootFrame].Children
	require.Len(t, children, 2, "only camera_link and iso_object expected")
	require.Contains(t, children, DefaultObjectFrame)
	require.Equal(t, document.DistLinear, children[CameraFrame].Location.Dist, "existing frame must not be replaced")
}

func TestScatterDefaults(t *testing.T) {
	doc, err := Compile(RawParameters{
		"scatters": `[{}, {"align_to_normal":"false","place_on_ground":"false","density_max":"4"}]`,
	})
	require.NoError(t, err)
	sc := doc.Scene.Scatters
	require.Len(t, sc, 2)
	require.Equal(t, "scatter_0", sc[0].Name)
	require.Equal(t, []string{"Example Assets/Plain Weeds"}, sc[0].Models)
	require.Equal(t, "Ground", *sc[0].FloorObject)
	require.Equal(t, 10.0, sc[0].DensityMax)
	require.Equal(t, 0.1, sc[0].DistanceMin)
	require.Equal(t, 0.2, sc[0].ScaleStandardDeviation)
	require.Equal(t, 1, sc[0].Seed)
	require.Equal(t, 20, sc[0].ClassID)
	require.True(t, sc[0].AlignToNormal)

	require.False(t, sc[1].AlignToNormal)
	require.Nil(t, sc[1].FloorObject)
	require.Equal(t, 4.0, sc[1].DensityMax)
	require.Equal(t, 21, sc[1].ClassID)
	require.Equal(t, 2, sc[1].Seed)
}

func TestCompileDeterministic(t *testing.T) {
	raw := RawParameters{
		"steps":    "5",
		"crops":    `[{"name":"a"},{"name":"b"}]`,
		"objects":  `[{"frame_id":"f1"},{"frame_id":"f2","place_on_ground":"true"}]`,
		"scatters": `[{"seed":9}]`,
	}
	first, err := Compile(raw)
	require.NoError(t, err)
	second, err := Compile(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("compile not deterministic (-first +second):\n%s", diff)
	}

	a, err := document.Marshal(first)
	require.NoError(t, err)
	b, err := document.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestCompileResultsAreIndependent(t *testing.T) {
	first, err := Compile(RawParameters{})
	require.NoError(t, err)
	first.Frames[document.RootFrame].Children["mutated"] = ObjectFrame()
	first.Scene.Ground[0].Name = "changed"

	second, err := Compile(RawParameters{})
	require.NoError(t, err)
	_, ok := second.Frames.Lookup("mutated")
	require.False(t, ok)
	require.Equal(t, GroundName, second.Scene.Ground[0].Name)
}

func TestCompiledRoundTrip(t *testing.T) {
	doc, err := Compile(RawParameters{
		"crops":    `[{"class_id_offset":{"Stem":3}}]`,
		"objects":  `[{"frame_id":"f1","place_on_ground":"true","max_texture_size":256}]`,
		"scatters": `[{"decimate_mesh_factor":"0.5"}]`,
	})
	require.NoError(t, err)
	data, err := document.Marshal(doc)
	require.NoError(t, err)
	parsed, err := document.Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, parsed); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRaw(t *testing.T) {
	raw, err := DecodeRaw([]byte(`{"steps":"2"}`), "application/json")
	require.NoError(t, err)
	require.Equal(t, "2", raw["steps"])

	raw, err = DecodeRaw([]byte("steps=4&render_device=CPU"), "application/x-www-form-urlencoded; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "4", raw["steps"])
	require.Equal(t, "CPU", raw["render_device"])

	for _, body := range []string{"", "[1,2]", `"text"`, "{broken"} {
		_, err := DecodeRaw([]byte(body), "application/json")
		require.ErrorIs(t, err, ErrInvalidInput, "body %q", body)
	}
}

func TestCompileBody(t *testing.T) {
	doc, err := CompileBody([]byte(`{"steps":2,"debug_mode":"scene"}`), "")
	require.NoError(t, err)
	require.Equal(t, 2, doc.Steps)

	_, err = CompileBody([]byte(`[]`), "application/json")
	require.ErrorIs(t, err, ErrInvalidInput)
}
