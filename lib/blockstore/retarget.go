// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"fmt"

	"github.com/bureau-foundation/longtail/lib/index"
)

// RetargetContent answers which blocks of store hold the chunks of
// content. The result lists store's blocks, not content's; chunks the
// store lacks are absent from it.
func RetargetContent(store BlockStore, content *index.ContentIndex) (*index.StoreIndex, error) {
	existing, err := GetExistingContentSync(store, content.ChunkHashes, 0)
	if err != nil {
		return nil, fmt.Errorf("retargeting content: %w", err)
	}
	retargeted, err := index.RetargetContent(existing, &content.StoreIndex)
	if err != nil {
		return nil, fmt.Errorf("retargeting content: %w", err)
	}
	return retargeted, nil
}
