// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
	"github.com/bureau-foundation/longtail/lib/codec"
	"github.com/bureau-foundation/longtail/lib/index"
)

type diffParams struct {
	Settings
	SourcePath string `flag:"source-path" desc:"version index file (.lvi) of the old version"`
	TargetPath string `flag:"target-path" desc:"version index file (.lvi) of the new version"`
	Output     string `flag:"output" desc:"write the diff as CBOR to this file"`
}

// DiffReport is the machine-readable form of a version diff.
type DiffReport struct {
	Removed            []string `cbor:"removed"`
	Added              []string `cbor:"added"`
	Modified           []string `cbor:"modified"`
	PermissionsChanged []string `cbor:"permissions_changed"`
	RequiredChunks     int      `cbor:"required_chunks"`
	RequiredBytes      uint64   `cbor:"required_bytes"`
}

func diffCommand(stdout io.Writer) *cli.Command {
	var params diffParams

	return &cli.Command{
		Name:    "diff",
		Summary: "Compare two versions",
		Description: `List the assets removed, added, modified and with changed permissions
between the version at --source-path and the one at --target-path,
and the chunk data a downsync from one to the other has to fetch.`,
		Usage: "longtail diff --source-path OLD.lvi --target-path NEW.lvi [--output DIFF.cbor]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("diff", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			return runDiff(&params, stdout)
		},
	}
}

func runDiff(params *diffParams, stdout io.Writer) error {
	sourcePath, err := localPath("source-path", params.SourcePath)
	if err != nil {
		return err
	}
	targetPath, err := localPath("target-path", params.TargetPath)
	if err != nil {
		return err
	}
	env, err := params.open("diff")
	if err != nil {
		return err
	}
	source, err := index.ReadVersionIndex(env.fs, sourcePath)
	if err != nil {
		return err
	}
	target, err := index.ReadVersionIndex(env.fs, targetPath)
	if err != nil {
		return err
	}
	diff, err := index.CreateVersionDiff(target, source)
	if err != nil {
		return err
	}

	report := buildDiffReport(source, target, diff)
	for _, path := range report.Removed {
		fmt.Fprintf(stdout, "- %s\n", path)
	}
	for _, path := range report.Added {
		fmt.Fprintf(stdout, "+ %s\n", path)
	}
	for _, path := range report.Modified {
		fmt.Fprintf(stdout, "M %s\n", path)
	}
	for _, path := range report.PermissionsChanged {
		fmt.Fprintf(stdout, "P %s\n", path)
	}
	fmt.Fprintf(stdout, "%d chunks (%s) required\n", report.RequiredChunks, humanize.IBytes(report.RequiredBytes))

	if params.Output == "" {
		return nil
	}
	output, err := localPath("output", params.Output)
	if err != nil {
		return err
	}
	return codec.WriteFile(env.fs, output, report)
}

func buildDiffReport(source, target *index.VersionIndex, diff *index.VersionDiff) *DiffReport {
	report := &DiffReport{}
	for _, asset := range diff.SourceRemoved {
		report.Removed = append(report.Removed, source.AssetPaths[asset])
	}
	for _, asset := range diff.TargetAdded {
		report.Added = append(report.Added, target.AssetPaths[asset])
	}
	for _, asset := range diff.TargetContentModified {
		report.Modified = append(report.Modified, target.AssetPaths[asset])
	}
	for _, asset := range diff.TargetPermissionsModified {
		report.PermissionsChanged = append(report.PermissionsChanged, target.AssetPaths[asset])
	}

	sizes := make(map[uint64]uint32, len(target.ChunkHashes))
	for i, hash := range target.ChunkHashes {
		sizes[hash] = target.ChunkSizes[i]
	}
	required := index.GetRequiredChunkHashes(target, diff)
	report.RequiredChunks = len(required)
	for _, hash := range required {
		report.RequiredBytes += uint64(sizes[hash])
	}
	return report
}
