// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	original := buildInfo
	buildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
	t.Cleanup(func() { buildInfo = original })
}

func TestInfoPrefersLinkerValues(t *testing.T) {
	commitBefore, dirtyBefore, timeBefore := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = commitBefore, dirtyBefore, timeBefore })
	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-01-02T03:04:05Z"
	stubBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffffffffff"}}})

	assert.Equal(t, Version+" (abc1234-dirty, 2026-01-02T03:04:05Z)", Info())
}

func TestInfoFallsBackToBuildStamp(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "false"},
	}})
	assert.Equal(t, Version+" (0123456789ab, unknown)", Info())

	stubBuildInfo(t, nil)
	assert.Equal(t, Version+" (unknown, unknown)", Info())
}

func TestFull(t *testing.T) {
	stubBuildInfo(t, nil)
	full := Full()
	assert.Contains(t, full, Info())
	assert.Contains(t, full, runtime.Version())
	assert.Contains(t, full, runtime.GOOS+"/"+runtime.GOARCH)
}
