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

package allocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

var errServiceDown = errors.New("allocation service unavailable")

func subRequest(t *testing.T, value string) models.Allocation {
	t.Helper()

	d, err := models.ParseDate(value)
	require.NoError(t, err)

	return models.Allocation{StartDate: d}
}

func visionLab(t *testing.T) models.Allocation {
	t.Helper()

	start, err := models.ParseDate("2023-01-01")
	require.NoError(t, err)

	end, err := models.ParseDate("2024-01-01")
	require.NoError(t, err)

	return models.Allocation{
		ID:           42,
		ProjectID:    "proj-9",
		ProjectName:  "Vision Lab",
		StartDate:    start,
		EndDate:      end,
		ContactEmail: "pi@uni.edu",
		Status:       "Approved",
	}
}

func TestResolveSingleAllocationWithoutSubRequests(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9"}).
		Return([]models.Allocation{visionLab(t)}, nil)
	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9", SubRequests: true}).
		Return(nil, nil)

	got, err := NewResolver(lister, logger.NewTestLogger()).Resolve(context.Background(), "proj-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, visionLab(t), *got)
}

func TestResolveMergesEarliestSubRequestStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9"}).
		Return([]models.Allocation{visionLab(t)}, nil)
	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9", SubRequests: true}).
		Return([]models.Allocation{subRequest(t, "2023-06-01"), subRequest(t, "2022-03-15"), subRequest(t, "2022-09-01")}, nil)

	got, err := NewResolver(lister, logger.NewTestLogger()).Resolve(context.Background(), "proj-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2022-03-15", got.StartDate.Format(models.DateLayout))
	assert.Equal(t, "2024-01-01", got.EndDate.Format(models.DateLayout))
}

func TestResolveNoAllocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parents []models.Allocation
	}{
		{name: "none", parents: nil},
		{name: "ambiguous", parents: []models.Allocation{{ID: 1}, {ID: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			lister := NewMockLister(ctrl)

			lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-1"}).Return(tt.parents, nil)

			got, err := NewResolver(lister, logger.NewTestLogger()).Resolve(context.Background(), "proj-1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestResolveEmptyProjectSkipsService(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	got, err := NewResolver(NewMockLister(ctrl), logger.NewTestLogger()).Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveServiceErrorIsResolutionError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9"}).Return(nil, errServiceDown)

	resolver := NewResolver(lister, logger.NewTestLogger())

	_, err := resolver.Resolve(context.Background(), "proj-9")

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "proj-9", resErr.ProjectID)
	require.ErrorIs(t, err, errServiceDown)

	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9"}).Return(nil, nil)

	got, err := resolver.Resolve(context.Background(), "proj-9")
	require.NoError(t, err, "failures are not cached")
	assert.Nil(t, got)
}

func TestResolveSubRequestErrorIsResolutionError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9"}).
		Return([]models.Allocation{visionLab(t)}, nil)
	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9", SubRequests: true}).
		Return(nil, errServiceDown)

	_, err := NewResolver(lister, logger.NewTestLogger()).Resolve(context.Background(), "proj-9")

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestResolveCachesPerProject(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9"}).
		Return([]models.Allocation{visionLab(t)}, nil).Times(1)
	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9", SubRequests: true}).
		Return(nil, nil).Times(1)
	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-0"}).
		Return(nil, nil).Times(1)

	resolver := NewResolver(lister, logger.NewTestLogger())

	first, err := resolver.Resolve(context.Background(), "proj-9")
	require.NoError(t, err)

	first.ProjectName = "mutated by caller"

	second, err := resolver.Resolve(context.Background(), "proj-9")
	require.NoError(t, err)
	assert.Equal(t, "Vision Lab", second.ProjectName)

	for range 2 {
		none, err := resolver.Resolve(context.Background(), "proj-0")
		require.NoError(t, err)
		assert.Nil(t, none)
	}
}

func TestResolveAppliesCallTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	lister.EXPECT().ListAllocations(gomock.Any(), ListOpts{ProjectID: "proj-9"}).
		DoAndReturn(func(ctx context.Context, _ ListOpts) ([]models.Allocation, error) {
			_, ok := ctx.Deadline()
			assert.True(t, ok)

			return nil, nil
		})

	_, err := NewResolver(lister, logger.NewTestLogger(), WithCallTimeout(time.Second)).
		Resolve(context.Background(), "proj-9")
	require.NoError(t, err)
}
