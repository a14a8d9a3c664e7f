package harness

import (
	"fmt"
	"strconv"

	"github.com/roach88/rdsync/internal/entity"
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/protocol"
)

// replica adapts a typed list to the untyped scenario steps.
type replica interface {
	bindable() protocol.Bindable
	add(v any) error
	addAll(vs []any) error
	set(i int, v any) error
	remove(i int) error
	clear() error
	setFlag(i int, v any) error
	advise(lt *lifetime.Lifetime, log func(string))
	view(lt *lifetime.Lifetime, log func(string))
	count() int
	entries() []string
}

type listReplica[T any] struct {
	list    *entity.List[T]
	convert func(any) T
	render  func(T) string
	flag    func(T) *entity.Property[*bool]
}

func newReplica(ls ListSpec) (replica, error) {
	switch ls.Kind {
	case KindString:
		l, err := protocol.Static(entity.NewList[string](), ls.ID)
		if err != nil {
			return nil, err
		}
		return &listReplica[string]{
			list:    l,
			convert: func(v any) string { return formatValue(v) },
			render:  func(s string) string { return s },
		}, nil
	case KindDynamic:
		l, err := protocol.Static(entity.NewList[*Item](), ls.ID)
		if err != nil {
			return nil, err
		}
		return &listReplica[*Item]{
			list:    l,
			convert: func(v any) *Item { return NewItem(flagOf(v)) },
			render:  func(it *Item) string { return FormatFlag(it.Flag.Value()) },
			flag:    func(it *Item) *entity.Property[*bool] { return it.Flag },
		}, nil
	default:
		return nil, fmt.Errorf("unknown list kind %q", ls.Kind)
	}
}

func (r *listReplica[T]) bindable() protocol.Bindable {
	return r.list
}

func (r *listReplica[T]) add(v any) error {
	return r.list.Add(r.convert(v))
}

func (r *listReplica[T]) addAll(vs []any) error {
	values := make([]T, len(vs))
	for i, v := range vs {
		values[i] = r.convert(v)
	}
	return r.list.AddAll(values...)
}

func (r *listReplica[T]) set(i int, v any) error {
	return r.list.Set(i, r.convert(v))
}

func (r *listReplica[T]) remove(i int) error {
	return r.list.RemoveAt(i)
}

func (r *listReplica[T]) clear() error {
	return r.list.Clear()
}

func (r *listReplica[T]) setFlag(i int, v any) error {
	if r.flag == nil {
		return fmt.Errorf("%s needs a %s list", OpSetFlag, KindDynamic)
	}
	entry, err := r.list.Get(i)
	if err != nil {
		return err
	}
	return r.flag(entry).Set(flagOf(v))
}

func (r *listReplica[T]) advise(lt *lifetime.Lifetime, log func(string)) {
	r.list.Advise(lt, func(ev entity.Event[T]) {
		log(fmt.Sprintf("%s %d:%s", ev.Kind, ev.Index, r.render(ev.Value)))
	})
}

// view logs "start i" and "finish i" around each entry's presence. In
// between it logs the entry's flag as it changes, or the plain value.
func (r *listReplica[T]) view(lt *lifetime.Lifetime, log func(string)) {
	r.list.View(lt, func(elt *lifetime.Lifetime, i int, v T) {
		idx := strconv.Itoa(i)
		elt.Bracket(
			func() { log("start " + idx) },
			func() { log("finish " + idx) },
		)
		if r.flag == nil {
			log(r.render(v))
			return
		}
		r.flag(v).Advise(elt, func(f *bool) { log(FormatFlag(f)) })
	})
}

func (r *listReplica[T]) count() int {
	return r.list.Count()
}

func (r *listReplica[T]) entries() []string {
	values := r.list.Entries()
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = r.render(v)
	}
	return out
}
