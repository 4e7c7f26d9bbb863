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

package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	strip := models.DefaultHostStrip()

	tests := []struct {
		host string
		want string
	}{
		{host: "ntr-gpu07-akld2", want: "gpu07"},
		{host: "ntr-gpu07.akld2", want: "gpu07"},
		{host: "gpu07", want: "gpu07"},
		{host: "ntr-ntr-gpu01-akld2", want: "gpu01"},
		{host: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeHost(tt.host, strip))
		})
	}

	assert.Equal(t, "ntr-gpu07", NormalizeHost("ntr-gpu07-akld2", []string{"", "akld2"}))
}

func TestDefaultsApply(t *testing.T) {
	t.Parallel()

	defaults := Defaults{
		ProjectName: "Auckland-CeR",
		StartDate:   time.Date(2017, 7, 4, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	launched := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	terminated := time.Date(2025, 2, 2, 3, 4, 5, 0, time.UTC)
	display := "notebook"

	alloc := &models.Allocation{
		ProjectName:  "Vision Lab",
		StartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		ContactEmail: "lead@vision.example",
	}

	t.Run("no allocation", func(t *testing.T) {
		t.Parallel()

		rec := models.DeviceRecord{ProjectID: "p"}
		got := defaults.Apply(&rec, nil)

		assert.Equal(t, "Auckland-CeR", got.ProjectName)
		assert.Equal(t, defaults.StartDate, got.LaunchedOn)
		assert.Equal(t, defaults.EndDate, got.TerminatedOn)
		assert.Nil(t, got.Contact)
		assert.Nil(t, got.InstanceName)
		assert.Nil(t, got.Allocation)
	})

	t.Run("allocation fills names and window", func(t *testing.T) {
		t.Parallel()

		rec := models.DeviceRecord{ProjectID: "p"}
		got := defaults.Apply(&rec, alloc)

		assert.Equal(t, "Vision Lab", got.ProjectName)
		require.NotNil(t, got.InstanceName)
		assert.Equal(t, "Vision Lab", *got.InstanceName)
		require.NotNil(t, got.Contact)
		assert.Equal(t, "lead@vision.example", *got.Contact)
		assert.Equal(t, alloc.StartDate, got.LaunchedOn)
		assert.Equal(t, alloc.EndDate, got.TerminatedOn)
	})

	t.Run("allocation missing dates keeps default bounds", func(t *testing.T) {
		t.Parallel()

		openEnded := &models.Allocation{ProjectName: "Vision Lab", StartDate: alloc.StartDate}
		rec := models.DeviceRecord{ProjectID: "p"}
		got := defaults.Apply(&rec, openEnded)

		assert.Equal(t, alloc.StartDate, got.StartDate)
		assert.Equal(t, defaults.EndDate, got.EndDate)
		assert.Equal(t, defaults.EndDate, got.TerminatedOn)

		undated := &models.Allocation{ProjectName: "Vision Lab"}
		got = defaults.Apply(&rec, undated)

		assert.Equal(t, defaults.StartDate, got.LaunchedOn)
		assert.Equal(t, defaults.EndDate, got.TerminatedOn)
		assert.Equal(t, "Vision Lab", got.ProjectName)
	})

	t.Run("instance values win", func(t *testing.T) {
		t.Parallel()

		rec := models.DeviceRecord{ProjectID: "p", DisplayName: &display, LaunchedAt: &launched, TerminatedAt: &terminated}
		got := defaults.Apply(&rec, alloc)

		require.NotNil(t, got.InstanceName)
		assert.Equal(t, "notebook", *got.InstanceName)
		assert.Equal(t, launched, got.LaunchedOn)
		assert.Equal(t, terminated, got.TerminatedOn)

		*got.InstanceName = "changed"
		assert.Equal(t, "notebook", display)
	})
}

func TestDefaultsFromConfig(t *testing.T) {
	t.Parallel()

	d, err := DefaultsFromConfig(&models.ReconcileConfig{
		DefaultProjectName: "Auckland-CeR",
		DefaultStartDate:   "2017-07-04",
		DefaultEndDate:     "9999-12-31",
	})
	require.NoError(t, err)
	assert.Equal(t, 2017, d.StartDate.Year())
	assert.Equal(t, 9999, d.EndDate.Year())

	_, err = DefaultsFromConfig(&models.ReconcileConfig{DefaultStartDate: "04/07/2017", DefaultEndDate: "9999-12-31"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default start date")
}

func TestPlanWrites(t *testing.T) {
	t.Parallel()

	base := models.EnrichedDevice{
		DeviceRecord: models.DeviceRecord{Model: "T4", Address: "0000:3b:00.0"},
		Hypervisor:   "gpu07",
		ProjectName:  "Vision Lab",
		StartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		instance       string
		project        string
		ip             string
		wantAssignment bool
		wantBooking    bool
	}{
		{name: "idle", wantAssignment: false, wantBooking: false},
		{name: "running with address", instance: "i", project: "p", ip: "130.216.4.12", wantAssignment: true},
		{name: "running without address", instance: "i", project: "p", wantBooking: true},
		{name: "reserved", project: "p", wantBooking: true},
		{name: "running without project", instance: "i", ip: "130.216.4.12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := base
			d.InstanceUUID = tt.instance
			d.ProjectID = tt.project
			d.IP = tt.ip

			w := PlanWrites(&d, true)

			assert.Equal(t, models.NodeKey{Hypervisor: "gpu07", Address: "0000:3b:00.0"}, w.Node.NodeKey)
			assert.Equal(t, "T4", w.Node.Model)
			assert.True(t, w.Node.Active)
			assert.True(t, w.Reactivate)
			assert.Equal(t, tt.wantAssignment, w.Assignment != nil)
			assert.Equal(t, tt.wantAssignment, w.Link != nil)
			assert.Equal(t, tt.wantBooking, w.Booking != nil)

			if w.Assignment != nil {
				assert.Equal(t, w.Assignment.AssignmentKey, w.Link.Assignment)
				assert.Equal(t, models.AssignmentOpen, w.Assignment.State)
			}

			if w.Booking != nil {
				assert.Equal(t, 1, w.Booking.Count)
				assert.Equal(t, base.StartDate, w.Booking.StartDate)
			}
		})
	}
}

func TestStalenessSet(t *testing.T) {
	t.Parallel()

	a := models.NodeKey{Hypervisor: "gpu01", Address: "x"}
	b := models.NodeKey{Hypervisor: "gpu02", Address: "x"}
	c := models.NodeKey{Hypervisor: "gpu03", Address: "x"}

	s := NewStalenessSet([]models.NodeKey{a, b, a, c})

	assert.True(t, s.WasActive(a))
	assert.False(t, s.WasActive(models.NodeKey{Hypervisor: "gpu04", Address: "x"}))

	s.MarkSeen(b)
	s.MarkSeen(models.NodeKey{Hypervisor: "gpu04", Address: "x"})

	assert.Equal(t, []models.NodeKey{a, c}, s.Stale())

	s.MarkSeen(a)
	s.MarkSeen(c)
	assert.Empty(t, s.Stale())
}
