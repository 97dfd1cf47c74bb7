// Package config reads vlab node files.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

type File struct {
	Nodes      []map[string]interface{}   `json:"nodes"`
	Wmediumd   *Wmediumd                  `json:"wmediumd,omitempty"`
	Net        *Net                       `json:"net,omitempty"`
	Controller map[string]json.RawMessage `json:"controller,omitempty"`
}

type Wmediumd struct {
	Config string `json:"config,omitempty"`
	Per    string `json:"per,omitempty"`
}

type Net struct {
	Delay *float64 `json:"delay,omitempty"`
}

// Node is the part of a node entry that vlab itself understands. The
// rest of the entry belongs to plugins.
type Node struct {
	Addr   string `json:"addr,omitempty"`
	Mem    int    `json:"mem,omitempty"`
	Name   string `json:"name,omitempty"`
	RootFS string `json:"rootfs,omitempty"`
}

func Read(path string) (*File, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}

func Parse(bs []byte) (*File, error) {
	var ret File
	if err := yaml.Unmarshal(bs, &ret); err != nil {
		return nil, err
	}
	if ret.Nodes == nil {
		return nil, fmt.Errorf("no nodes defined")
	}
	return &ret, nil
}

// DecodeNode extracts vlab's own keys from a raw node entry.
func DecodeNode(raw map[string]interface{}) (*Node, error) {
	var ret Node
	if len(raw) == 0 {
		return &ret, nil
	}
	bs, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bs, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// StartTime returns the controller's time-at-start setting.
func (f *File) StartTime() (int64, error) {
	raw, ok := f.Controller["start-time"]
	if !ok || string(raw) == "null" {
		return 0, nil
	}
	var ret int64
	if err := json.Unmarshal(raw, &ret); err != nil {
		return 0, fmt.Errorf("controller start-time: %v", err)
	}
	return ret, nil
}

// NoSHM reports whether the controller section disables shared
// memory. Only the key's presence matters.
func (f *File) NoSHM() bool {
	_, ok := f.Controller["no-shm"]
	return ok
}
