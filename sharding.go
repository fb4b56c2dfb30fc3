// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// CollectionMetadata is the sharding metadata for one namespace: the shard
// key pattern and, optionally, an ownership predicate used to filter
// documents that belong to chunks this node does not own.
type CollectionMetadata struct {
	KeyPattern bson.D
	OwnsDoc    func(doc bson.D) bool
}

// Owns reports whether doc belongs on this shard. With no ownership
// predicate configured every document is owned.
func (m *CollectionMetadata) Owns(doc bson.D) bool {
	if m.OwnsDoc == nil {
		return true
	}
	return m.OwnsDoc(doc)
}

// ShardingState tracks which namespaces are sharded on this node.
type ShardingState struct {
	mu       sync.RWMutex
	metadata map[string]*CollectionMetadata
}

func NewShardingState() *ShardingState {
	return &ShardingState{
		metadata: make(map[string]*CollectionMetadata),
	}
}

// GetCollectionMetadata returns the metadata for ns, or nil when ns is not
// sharded.
func (s *ShardingState) GetCollectionMetadata(ns string) *CollectionMetadata {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata[ns]
}

// SetCollectionMetadata marks ns as sharded with the given metadata.
func (s *ShardingState) SetCollectionMetadata(ns string, m *CollectionMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[ns] = m
}
