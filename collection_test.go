// Copyright 2024 TernDB Corp. All rights reserved.
package tern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/errors"
)

func TestCollection_Insert(t *testing.T) {
	coll := tern.NewCollection("db.things")
	require.NoError(t, coll.Insert(
		bson.D{{Key: "_id", Value: 1}, {Key: "v", Value: "a"}},
		bson.D{{Key: "_id", Value: "two"}, {Key: "v", Value: "b"}},
		bson.D{{Key: "v", Value: "no id"}},
	))
	assert.Equal(t, 3, coll.NumRecords())

	t.Run("FindByID", func(t *testing.T) {
		doc, ok := coll.FindByID(1)
		require.True(t, ok)
		v, _ := docField(doc, "v")
		assert.Equal(t, "a", v)

		// Numeric ids unify across widths.
		_, ok = coll.FindByID(int64(1))
		assert.True(t, ok)

		doc, ok = coll.FindByID("two")
		require.True(t, ok)
		v, _ = docField(doc, "v")
		assert.Equal(t, "b", v)

		_, ok = coll.FindByID(99)
		assert.False(t, ok)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		err := coll.Insert(bson.D{{Key: "_id", Value: 1}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, tern.ErrDuplicateKey))
	})

	t.Run("SnapshotIsACopy", func(t *testing.T) {
		snap := coll.Snapshot()
		require.Len(t, snap, 3)
		snap[0].Doc = bson.D{}
		fresh := coll.Snapshot()
		assert.NotEmpty(t, fresh[0].Doc)
	})
}

func TestCollection_Namespace(t *testing.T) {
	assert.Equal(t, "db", tern.NSDatabase("db.coll"))
	assert.Equal(t, "coll", tern.NSCollection("db.coll"))
	assert.Equal(t, "db", tern.NSDatabase("db"))
	assert.Equal(t, "", tern.NSCollection("db"))
	assert.Equal(t, "sub.coll", tern.NSCollection("db.sub.coll"))
}

func TestIndexCatalog(t *testing.T) {
	cat := tern.NewIndexCatalog()
	require.NoError(t, cat.AddIndex(&tern.IndexDescriptor{
		Name:       "_id_",
		KeyPattern: bson.D{{Key: "_id", Value: 1}},
	}))
	require.NoError(t, cat.AddIndex(&tern.IndexDescriptor{
		Name:       "a_1_b_-1",
		KeyPattern: bson.D{{Key: "a", Value: 1}, {Key: "b", Value: -1}},
	}))
	cat.AddUnfinishedIndex(&tern.IndexDescriptor{
		Name:       "building",
		KeyPattern: bson.D{{Key: "c", Value: 1}},
	})

	t.Run("DuplicateName", func(t *testing.T) {
		err := cat.AddIndex(&tern.IndexDescriptor{Name: "_id_"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, tern.ErrIndexExists))
	})

	t.Run("Iteration", func(t *testing.T) {
		assert.Len(t, cat.Indexes(false), 2)
		assert.Len(t, cat.Indexes(true), 3)
	})

	t.Run("FindIDIndex", func(t *testing.T) {
		d := cat.FindIDIndex()
		require.NotNil(t, d)
		assert.Equal(t, "_id_", d.Name)
	})

	t.Run("FindByName", func(t *testing.T) {
		assert.NotNil(t, cat.FindByName("a_1_b_-1"))
		assert.Nil(t, cat.FindByName("nope"))
	})

	t.Run("FieldPosition", func(t *testing.T) {
		d := cat.FindByName("a_1_b_-1")
		assert.Equal(t, 0, d.FieldPosition("a"))
		assert.Equal(t, 1, d.FieldPosition("b"))
		assert.Equal(t, -1, d.FieldPosition("z"))
	})
}

func TestIndexDescriptor_PluginName(t *testing.T) {
	plain := &tern.IndexDescriptor{KeyPattern: bson.D{{Key: "a", Value: 1}}}
	assert.Equal(t, "", plain.PluginName())

	hashed := &tern.IndexDescriptor{KeyPattern: bson.D{{Key: "a", Value: "hashed"}}}
	assert.Equal(t, "hashed", hashed.PluginName())

	compound := &tern.IndexDescriptor{KeyPattern: bson.D{{Key: "a", Value: 1}, {Key: "b", Value: "2dsphere"}}}
	assert.Equal(t, "2dsphere", compound.PluginName())
}

func docField(doc bson.D, name string) (interface{}, bool) {
	for _, elem := range doc {
		if elem.Key == name {
			return elem.Value, true
		}
	}
	return nil, false
}
