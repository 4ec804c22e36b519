package docsync

import (
	"encoding/json"
	"fmt"
)

// ItemKind discriminates the QueueItem union.
type ItemKind string

const (
	KindContentBatch  ItemKind = "content_batch"
	KindRedirectBatch ItemKind = "redirect_batch"
	KindCleanup       ItemKind = "cleanup"
)

// QueueItem is one unit of work stored in the durable queue.
// Files is set for the batch kinds, PassStartTimestamp for cleanup.
type QueueItem struct {
	Kind               ItemKind     `json:"kind"`
	Files              []SourceFile `json:"files,omitempty"`
	PassStartTimestamp int64        `json:"pass_start_timestamp,omitempty"`
}

func NewContentBatch(files []SourceFile) QueueItem {
	return QueueItem{Kind: KindContentBatch, Files: files}
}

func NewRedirectBatch(files []SourceFile) QueueItem {
	return QueueItem{Kind: KindRedirectBatch, Files: files}
}

func NewCleanupMarker(passStart int64) QueueItem {
	return QueueItem{Kind: KindCleanup, PassStartTimestamp: passStart}
}

// EncodeItem serializes an item for storage.
func EncodeItem(item QueueItem) ([]byte, error) {
	if err := item.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding queue item: %w", err)
	}
	return data, nil
}

// DecodeItem parses stored item data and rejects unknown kinds.
func DecodeItem(data []byte) (QueueItem, error) {
	var item QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return QueueItem{}, fmt.Errorf("decoding queue item: %w", err)
	}
	if err := item.validate(); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

func (i QueueItem) validate() error {
	switch i.Kind {
	case KindContentBatch, KindRedirectBatch:
		if len(i.Files) == 0 {
			return fmt.Errorf("queue item %s has no files", i.Kind)
		}
	case KindCleanup:
		if i.PassStartTimestamp <= 0 {
			return fmt.Errorf("cleanup item has no pass start timestamp")
		}
	default:
		return fmt.Errorf("unknown queue item kind %q", i.Kind)
	}
	return nil
}

// ChunkFiles splits files into batches of at most size, preserving order.
func ChunkFiles(files []SourceFile, size int) [][]SourceFile {
	if size <= 0 {
		size = 1
	}
	var chunks [][]SourceFile
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		chunks = append(chunks, files[start:end:end])
	}
	return chunks
}
