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

package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

func TestModelFromAlias(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "T4", ModelFromAlias("T4:1"))
	assert.Equal(t, "V100-32G", ModelFromAlias("V100-32G:2"))
	assert.Equal(t, "P40", ModelFromAlias(" P40 "))
	assert.Empty(t, ModelFromAlias(""))
}

func TestNewFlavorCatalogRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewFlavorCatalog(nil, "akl.gpu[", 0, logger.NewTestLogger())
	require.ErrorIs(t, err, errBadFlavorPattern)
}

func TestGPUFlavors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	api.EXPECT().ListFlavors(gomock.Any()).Return([]Flavor{
		{ID: "f-t4", Name: "akl.gpu.t4"},
		{ID: "f-m3", Name: "m3.small"},
		{ID: "f-p40", Name: "akl.gpu.p40"},
		{ID: "f-bare", Name: "akl.gpu.bare"},
		{ID: "f-gone", Name: "akl.gpu.gone"},
	}, nil)

	api.EXPECT().FlavorExtraSpecs(gomock.Any(), "f-t4").Return(map[string]string{PCIAliasSpec: "T4:1"}, nil)
	api.EXPECT().FlavorAccess(gomock.Any(), "f-t4").Return([]string{"proj-1", "proj-2"}, nil)
	api.EXPECT().FlavorExtraSpecs(gomock.Any(), "f-p40").Return(map[string]string{PCIAliasSpec: "P40:1"}, nil)
	api.EXPECT().FlavorAccess(gomock.Any(), "f-p40").Return([]string{"proj-3"}, nil)
	api.EXPECT().FlavorExtraSpecs(gomock.Any(), "f-bare").Return(map[string]string{"hw:cpu_policy": "dedicated"}, nil)
	api.EXPECT().FlavorAccess(gomock.Any(), "f-bare").Return(nil, nil)
	api.EXPECT().FlavorExtraSpecs(gomock.Any(), "f-gone").Return(nil, &NotFoundError{Kind: "flavor", ID: "f-gone"})

	catalog, err := NewFlavorCatalog(api, "akl.gpu*", 0, logger.NewTestLogger())
	require.NoError(t, err)

	got, err := catalog.GPUFlavors(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.GPUFlavor{
		{ID: "f-p40", Name: "akl.gpu.p40", Model: "P40", ProjectIDs: []string{"proj-3"}},
		{ID: "f-t4", Name: "akl.gpu.t4", Model: "T4", ProjectIDs: []string{"proj-1", "proj-2"}},
	}, got)
}

func TestGPUFlavorsListFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	api.EXPECT().ListFlavors(gomock.Any()).Return(nil, errComputeDown)

	catalog, err := NewFlavorCatalog(api, "akl.gpu*", 0, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = catalog.GPUFlavors(context.Background())

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "list flavors", resErr.Op)
}

func TestUserProjects(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	api.EXPECT().FindUsers(gomock.Any(), "pi@uni.edu").Return([]User{{ID: "u-1", Name: "pi@uni.edu"}}, nil)
	api.EXPECT().UserProjectIDs(gomock.Any(), "u-1").Return([]string{"proj-9", "proj-4", "proj-9"}, nil)

	projects, err := UserProjects(context.Background(), api, "pi@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, []string{"proj-9", "proj-4"}, projects)
}

func TestUserProjectsUnknownUser(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	api.EXPECT().FindUsers(gomock.Any(), "nobody@uni.edu").Return(nil, nil)

	_, err := UserProjects(context.Background(), api, "nobody@uni.edu")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "user", notFound.Kind)
}
