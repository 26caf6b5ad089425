package serializer

import (
	"fmt"
	"reflect"

	"EasyAPI/internal/model"
)

// Entity is a loaded model instance as seen by the serializer.
type Entity interface {
	ModelName() string
	PrimaryKey() any
	// Fields returns field descriptors in declaration order.
	Fields() []*model.Field
	Value(name string) (any, error)
	// ToOne returns nil, nil for a null reference.
	ToOne(name string) (Entity, error)
	// ToMany reports loaded=false when the relation was not prefetched.
	ToMany(name string) (items []Entity, loaded bool, err error)
}

var entityType = reflect.TypeOf((*Entity)(nil)).Elem()

func isNilEntity(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

type identity struct {
	model string
	pk    string
}

func identityOf(e Entity) identity {
	return identity{model: e.ModelName(), pk: fmt.Sprint(e.PrimaryKey())}
}

// ReferrerChain lists the entities open on the current path. It is never
// mutated; With returns an extended copy.
type ReferrerChain struct {
	ids []identity
}

func (c ReferrerChain) With(e Entity) ReferrerChain {
	ids := make([]identity, len(c.ids), len(c.ids)+1)
	copy(ids, c.ids)
	return ReferrerChain{ids: append(ids, identityOf(e))}
}

func (c ReferrerChain) Contains(e Entity) bool {
	id := identityOf(e)
	for _, v := range c.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (c ReferrerChain) Len() int {
	return len(c.ids)
}
