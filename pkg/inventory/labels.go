/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package inventory

import (
	"fmt"
	"maps"
	"slices"
)

// DefaultLabels maps Nova PCI device labels (vendor and product id) to the
// GPU model names used in the tracking store and in flavor aliases.
func DefaultLabels() map[string]string {
	return map[string]string{
		"label_10de_1023": "K40m",
		"label_10de_1b38": "P40",
		"label_10de_1e02": "TRTX",
		"label_10de_1021": "K20Xm",
		"label_10de_1024": "K40c",
		"label_10de_1b80": "1080",
		"label_10de_1eb8": "T4",
		"label_10de_1db6": "V100-32G",
	}
}

// UnknownDeviceLabelError is returned when Nova reports a PCI label with no
// model mapping. New hardware needs a gpu_labels entry before runs resume.
type UnknownDeviceLabelError struct {
	Label   string
	Host    string
	Address string
}

func (e *UnknownDeviceLabelError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("unknown pci device label %q", e.Label)
	}

	return fmt.Sprintf("unknown pci device label %q on %s %s", e.Label, e.Host, e.Address)
}

// LabelMap is an immutable label to model table.
type LabelMap struct {
	labels map[string]string
}

// NewLabelMap returns the default table with overrides applied on top.
func NewLabelMap(overrides map[string]string) *LabelMap {
	labels := DefaultLabels()
	maps.Copy(labels, overrides)

	return &LabelMap{labels: labels}
}

// Translate returns the model for label or an *UnknownDeviceLabelError.
func (m *LabelMap) Translate(label string) (string, error) {
	model, ok := m.labels[label]
	if !ok || model == "" {
		return "", &UnknownDeviceLabelError{Label: label}
	}

	return model, nil
}

// Labels lists the known labels in sorted order.
func (m *LabelMap) Labels() []string {
	return slices.Sorted(maps.Keys(m.labels))
}
