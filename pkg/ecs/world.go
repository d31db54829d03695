// Package ecs keeps the persistent bookkeeping of an entity component system in dense sets: the
// registry of live entities, which components each entity has, and where entities stand on the
// tile grid.
package ecs

import (
	"context"
	"strings"

	"github.com/argus-labs/denseset/pkg/adjacency"
	"github.com/argus-labs/denseset/pkg/denseset"
	"github.com/argus-labs/denseset/pkg/event"
	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// EntityID is a unique identifier for an entity. Ids are 48 bits wide so five fit in a word.
type EntityID uint64

// MaxEntityID is the maximum entity ID that can be created.
const MaxEntityID = 1<<48 - 1

// ComponentID identifies a component type.
type ComponentID uint16

// Tile is a position on the world grid.
type Tile struct {
	X, Y int32
}

// TileID packs a tile into one 64-bit element.
type TileID uint64

func (t Tile) ID() TileID {
	return TileID(uint64(uint32(t.X))<<32 | uint64(uint32(t.Y)))
}

func (id TileID) Tile() Tile {
	return Tile{X: int32(uint32(id >> 32)), Y: int32(uint32(id))}
}

const (
	entityNamespace    = "ecs.entity"
	componentNamespace = "ecs.component"
	tileNamespace      = "ecs.tile"
)

// World stores the entities of every owner. Mutations act on the caller bound to the context.
type World struct {
	buf        *storage.Buffer
	entities   *denseset.Store[EntityID]
	components *adjacency.Index[EntityID, ComponentID]
	locations  *adjacency.Index[EntityID, TileID]
	registry   setid.SetID

	logger zerolog.Logger
	events *event.Manager
}

type Option func(*World)

func WithLogger(logger zerolog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// WithEvents publishes observations for every set the world changes.
func WithEvents(m *event.Manager) Option {
	return func(w *World) {
		w.events = m
	}
}

func NewWorld(buf *storage.Buffer, opts ...Option) (*World, error) {
	w := &World{
		buf:      buf,
		registry: setid.Derive("ecs.entities"),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	storeOpts := func(namespace string) []denseset.Option {
		o := []denseset.Option{denseset.WithNamespace(namespace), denseset.WithLogger(w.logger)}
		if w.events != nil {
			o = append(o, denseset.WithEvents(w.events))
		}
		return o
	}

	var err error
	if w.entities, err = denseset.New[EntityID](buf, packed.Uint48, storeOpts(entityNamespace)...); err != nil {
		return nil, err
	}
	componentSets, err := denseset.New[ComponentID](buf, packed.Uint16, storeOpts(componentNamespace)...)
	if err != nil {
		return nil, err
	}
	tileSets, err := denseset.New[TileID](buf, packed.Uint64, storeOpts(tileNamespace)...)
	if err != nil {
		return nil, err
	}

	// The entity store holds the registry and both mirror sides; tags keep their set ids apart.
	if w.components, err = adjacency.New[EntityID, ComponentID]("ecs.components", componentSets, w.entities); err != nil {
		return nil, err
	}
	if w.locations, err = adjacency.New[EntityID, TileID]("ecs.location", tileSets, w.entities); err != nil {
		return nil, err
	}
	return w, nil
}

// nextIDKey holds the next entity id to allocate for an owner.
func nextIDKey(owner setid.Owner) string {
	return "ECS:" + strings.ToLower(owner.Hex()) + ":NEXT"
}

func (w *World) allocate(ctx context.Context, owner setid.Owner) (EntityID, error) {
	var next uint64
	bz, err := w.buf.GetBytes(ctx, nextIDKey(owner))
	switch {
	case err == nil:
		if next, err = storage.DecodeUint64(bz); err != nil {
			return 0, err
		}
	case eris.Is(err, storage.ErrNotFound):
	default:
		return 0, err
	}

	if next > MaxEntityID {
		return 0, ErrEntityLimit
	}
	if err := w.buf.Set(ctx, nextIDKey(owner), storage.EncodeUint64(next+1)); err != nil {
		return 0, err
	}
	return EntityID(next), nil
}

// CreateEntity registers a new entity with the given components.
func (w *World) CreateEntity(ctx context.Context, components ...ComponentID) (EntityID, error) {
	owner, err := setid.CallerFrom(ctx)
	if err != nil {
		return 0, err
	}

	var id EntityID
	err = w.buf.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if id, err = w.allocate(ctx, owner); err != nil {
			return err
		}
		if _, err := w.entities.Add(ctx, w.registry, id); err != nil {
			return err
		}
		if len(components) == 0 {
			return nil
		}
		_, err = w.components.LinkMany(ctx, id, components)
		return err
	})
	if err != nil {
		return 0, eris.Wrap(err, "failed to create entity")
	}

	w.logger.Debug().Uint64("entity", uint64(id)).Int("components", len(components)).Msg("entity created")
	return id, nil
}

// DestroyEntity removes an entity together with its components and location. Destroying an
// unknown entity is a no-op.
func (w *World) DestroyEntity(ctx context.Context, id EntityID) (bool, error) {
	var destroyed bool
	err := w.buf.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if destroyed, err = w.entities.Remove(ctx, w.registry, id); err != nil || !destroyed {
			return err
		}
		if _, err := w.components.ClearSource(ctx, id); err != nil {
			return err
		}
		_, err = w.locations.ClearSource(ctx, id)
		return err
	})
	if err != nil {
		return false, eris.Wrap(err, "failed to destroy entity")
	}
	return destroyed, nil
}

// alive fails with ErrEntityNotFound unless the caller owns a live entity id.
func (w *World) alive(ctx context.Context, id EntityID) error {
	owner, err := setid.CallerFrom(ctx)
	if err != nil {
		return err
	}
	ok, err := w.entities.Contains(ctx, owner, w.registry, id)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrEntityNotFound, "entity %d", id)
	}
	return nil
}

// AddComponent attaches component c to an entity and reports whether it was newly attached.
func (w *World) AddComponent(ctx context.Context, id EntityID, c ComponentID) (bool, error) {
	var added bool
	err := w.buf.Atomic(ctx, func(ctx context.Context) error {
		if err := w.alive(ctx, id); err != nil {
			return err
		}
		var err error
		added, err = w.components.Link(ctx, id, c)
		return err
	})
	return added, err
}

// RemoveComponent detaches component c from an entity and reports whether it was attached.
func (w *World) RemoveComponent(ctx context.Context, id EntityID, c ComponentID) (bool, error) {
	var removed bool
	err := w.buf.Atomic(ctx, func(ctx context.Context) error {
		if err := w.alive(ctx, id); err != nil {
			return err
		}
		var err error
		removed, err = w.components.Unlink(ctx, id, c)
		return err
	})
	return removed, err
}

// MoveTo places an entity on tile, leaving its previous tile.
func (w *World) MoveTo(ctx context.Context, id EntityID, tile Tile) error {
	return w.buf.Atomic(ctx, func(ctx context.Context) error {
		if err := w.alive(ctx, id); err != nil {
			return err
		}
		if _, err := w.locations.ClearSource(ctx, id); err != nil {
			return err
		}
		_, err := w.locations.Link(ctx, id, tile.ID())
		return err
	})
}

func (w *World) HasComponent(ctx context.Context, owner setid.Owner, id EntityID, c ComponentID) (bool, error) {
	return w.components.Has(ctx, owner, id, c)
}

func (w *World) ComponentsOf(ctx context.Context, owner setid.Owner, id EntityID) ([]ComponentID, error) {
	return w.components.Targets(ctx, owner, id)
}

func (w *World) EntitiesWith(ctx context.Context, owner setid.Owner, c ComponentID) ([]EntityID, error) {
	return w.components.Sources(ctx, owner, c)
}

// Entities returns every live entity of owner.
func (w *World) Entities(ctx context.Context, owner setid.Owner) ([]EntityID, error) {
	return w.entities.GetAll(ctx, owner, w.registry)
}

func (w *World) EntitiesAt(ctx context.Context, owner setid.Owner, tile Tile) ([]EntityID, error) {
	return w.locations.Sources(ctx, owner, tile.ID())
}

// LocationOf returns the tile an entity stands on. ok is false for entities never moved.
func (w *World) LocationOf(ctx context.Context, owner setid.Owner, id EntityID) (Tile, bool, error) {
	tiles, err := w.locations.Targets(ctx, owner, id)
	if err != nil || len(tiles) == 0 {
		return Tile{}, false, err
	}
	return tiles[0].Tile(), true, nil
}
