// Package catalog reads the asset catalog maintained by the asset manager
// and flattens it into a list the selection UI can render.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// KindModel is the asset kind that can be placed in a scene.
const KindModel = "model"

const defaultHeight = 1.0

var (
	ErrUnavailable = errors.New("asset catalog not found")
	ErrParse       = errors.New("asset catalog could not be parsed")
)

// Error describes why a catalog could not be listed. Kind is ErrUnavailable
// or ErrParse.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Asset is one selectable catalog entry.
type Asset struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Library   string   `json:"library"`
	Type      string   `json:"type"`
	Tags      []string `json:"tags"`
	Thumbnail []string `json:"thumbnail"`
	Height    float64  `json:"height"`
}

type assetEntry struct {
	Type      string     `yaml:"type"`
	Tags      stringList `yaml:"tags"`
	Thumbnail stringList `yaml:"thumbnail"`
	Height    *float64   `yaml:"height"`
}

type libraryEntry struct {
	Assets map[string]yaml.Node `yaml:"assets"`
}

// stringList accepts either a single string or a list of strings.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*s = nil
			return nil
		}
		*s = stringList{node.Value}
		return nil
	default:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	}
}

type cacheKey struct {
	path    string
	kind    string
	size    int64
	modTime time.Time
}

// Reader lists catalog assets. Listings are cached until the file changes.
// A Reader is safe for concurrent use.
type Reader struct {
	cache *lru.Cache[cacheKey, []Asset]
}

// NewReader returns a Reader caching up to size listings.
func NewReader(size int) (*Reader, error) {
	cache, err := lru.New[cacheKey, []Asset](size)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	return &Reader{cache: cache}, nil
}

// ListAssets returns the model assets of the catalog at path.
func (r *Reader) ListAssets(path string) ([]Asset, error) {
	return r.ListAssetsOfKind(path, KindModel)
}

// ListAssetsOfKind returns the assets of the given kind. On failure it
// returns an empty, non-nil list and an *Error.
func (r *Reader) ListAssetsOfKind(path, kind string) ([]Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Asset{}, &Error{Kind: ErrUnavailable, Path: path}
		}
		return []Asset{}, &Error{Kind: ErrUnavailable, Path: path, Err: err}
	}
	if info.IsDir() {
		return []Asset{}, &Error{Kind: ErrUnavailable, Path: path, Err: errors.New("is a directory")}
	}
	key := cacheKey{path: path, kind: kind, size: info.Size(), modTime: info.ModTime()}
	if r != nil && r.cache != nil {
		if assets, ok := r.cache.Get(key); ok {
			return cloneAssets(assets), nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return []Asset{}, &Error{Kind: ErrUnavailable, Path: path, Err: err}
	}
	assets, err := Parse(data, kind)
	if err != nil {
		return []Asset{}, &Error{Kind: ErrParse, Path: path, Err: err}
	}
	if r != nil && r.cache != nil {
		r.cache.Add(key, assets)
	}
	return cloneAssets(assets), nil
}

// Parse flattens catalog YAML into assets of the given kind, sorted by
// library and asset name. Libraries without an assets mapping are skipped.
func Parse(data []byte, kind string) ([]Asset, error) {
	var libraries map[string]yaml.Node
	if err := yaml.Unmarshal(data, &libraries); err != nil {
		return nil, err
	}
	libNames := make([]string, 0, len(libraries))
	for name := range libraries {
		libNames = append(libNames, name)
	}
	sort.Strings(libNames)

	assets := []Asset{}
	for _, libName := range libNames {
		node := libraries[libName]
		if node.Kind != yaml.MappingNode {
			continue
		}
		var lib libraryEntry
		if err := node.Decode(&lib); err != nil {
			continue
		}
		assetNames := make([]string, 0, len(lib.Assets))
		for name := range lib.Assets {
			assetNames = append(assetNames, name)
		}
		sort.Strings(assetNames)
		for _, assetName := range assetNames {
			assetNode := lib.Assets[assetName]
			if assetNode.Kind != yaml.MappingNode {
				continue
			}
			entry, ok := decodeAsset(&assetNode, kind)
			if !ok {
				continue
			}
			height := defaultHeight
			if entry.Height != nil {
				height = *entry.Height
			}
			assets = append(assets, Asset{
				ID:        libName + "/" + assetName,
				Name:      assetName,
				Library:   libName,
				Type:      entry.Type,
				Tags:      nonNil(entry.Tags),
				Thumbnail: nonNil(entry.Thumbnail),
				Height:    height,
			})
		}
	}
	return assets, nil
}

// decodeAsset reads an asset entry of the given kind. Entries of other
// kinds are skipped without looking at their fields; malformed optional
// fields fall back to their defaults.
func decodeAsset(node *yaml.Node, kind string) (assetEntry, bool) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil || head.Type != kind {
		return assetEntry{}, false
	}
	var fields map[string]yaml.Node
	if err := node.Decode(&fields); err != nil {
		return assetEntry{}, false
	}
	entry := assetEntry{Type: head.Type}
	if n, ok := fields["tags"]; ok {
		var tags stringList
		if err := n.Decode(&tags); err == nil {
			entry.Tags = tags
		}
	}
	if n, ok := fields["thumbnail"]; ok {
		var thumbs stringList
		if err := n.Decode(&thumbs); err == nil {
			entry.Thumbnail = thumbs
		}
	}
	if n, ok := fields["height"]; ok && n.Tag != "!!null" {
		var h float64
		if err := n.Decode(&h); err == nil {
			entry.Height = &h
		}
	}
	return entry, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func cloneAssets(in []Asset) []Asset {
	out := make([]Asset, len(in))
	for i, a := range in {
		a.Tags = append([]string{}, a.Tags...)
		a.Thumbnail = append([]string{}, a.Thumbnail...)
		out[i] = a
	}
	return out
}
