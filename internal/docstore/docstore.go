// Package docstore описывает удалённое документное хранилище: документы по
// пути, живые подписки, транзакции read-modify-write и пакетные записи.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// MaxTransactionAttempts: сколько раз транзакция перезапускается при конфликте.
const MaxTransactionAttempts = 5

// IDField подмешивается в данные документа при чтении.
const IDField = "id"

var (
	ErrNotFound   = errors.New("document not found")
	ErrContention = errors.New("transaction aborted: too much contention")
	ErrConflict   = errors.New("transaction conflict")
	ErrBadPath    = errors.New("bad document path")
)

// Data содержит поля документа.
type Data map[string]any

// Ref указывает на документ или коллекцию.
type Ref struct {
	Path string
}

// Doc строит ссылку из сегментов пути: Doc("rooms", id).
func Doc(segments ...string) Ref {
	return Ref{Path: strings.Join(segments, "/")}
}

// Collection возвращает ссылку на коллекцию. Представление то же, что у документа.
func Collection(segments ...string) Ref {
	return Doc(segments...)
}

// Child возвращает документ внутри коллекции.
func (r Ref) Child(id string) Ref {
	return Ref{Path: r.Path + "/" + id}
}

// ID возвращает последний сегмент пути.
func (r Ref) ID() string {
	return path.Base(r.Path)
}

// Parent возвращает коллекцию, в которой лежит документ.
func (r Ref) Parent() string {
	dir := path.Dir(r.Path)
	if dir == "." {
		return ""
	}
	return dir
}

func (r Ref) String() string { return r.Path }

// Validate проверяет, что путь не пустой и без пустых сегментов.
func (r Ref) Validate() error {
	if r.Path == "" || strings.HasPrefix(r.Path, "/") || strings.HasSuffix(r.Path, "/") || strings.Contains(r.Path, "//") {
		return fmt.Errorf("%w: %q", ErrBadPath, r.Path)
	}
	return nil
}

// Snapshot хранит прочитанное состояние документа.
type Snapshot struct {
	Ref    Ref
	Exists bool
	Data   Data
}

// DataTo раскладывает документ в структуру, подмешивая id документа.
func (s Snapshot) DataTo(dst any) error {
	if !s.Exists {
		return fmt.Errorf("%w: %s", ErrNotFound, s.Ref)
	}
	m := make(map[string]any, len(s.Data)+1)
	for k, v := range s.Data {
		m[k] = v
	}
	m[IDField] = s.Ref.ID()

	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.Ref, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %s: %w", s.Ref, err)
	}
	return nil
}

// Tx: чтения фиксируются, записи применяются при коммите.
type Tx interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ref Ref, data Data)
	Update(ref Ref, data Data)
	Delete(ref Ref)
}

// Batch копит записи и применяет их атомарно в Commit.
type Batch interface {
	Set(ref Ref, data Data)
	Update(ref Ref, data Data)
	Delete(ref Ref)
	Commit(ctx context.Context) error
}

// Store описывает документное хранилище.
type Store interface {
	// Observe вызывает fn с текущим значением документа и затем на каждое
	// изменение. Блокируется до отмены ctx (nil) или ошибки бекенда.
	Observe(ctx context.Context, ref Ref, fn func(Snapshot)) error
	// ObserveCollection делает то же для всех дочерних документов.
	ObserveCollection(ctx context.Context, ref Ref, fn func([]Snapshot)) error
	// RunTransaction перезапускает fn при конфликтах записи; ошибка fn
	// отменяет транзакцию без записей.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// GetAll читает коллекцию один раз.
	GetAll(ctx context.Context, ref Ref) ([]Snapshot, error)
	Batch() Batch
}

// Op: отложенная запись транзакции или пакета.
type Op struct {
	Kind OpKind
	Ref  Ref
	Data Data
}

type OpKind uint8

const (
	OpSet OpKind = iota + 1
	OpUpdate
	OpDelete
)

// Merge накладывает частичное обновление на документ (поверхностно, по полям).
func Merge(base, patch Data) Data {
	out := make(Data, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Clone делает поверхностную копию.
func Clone(d Data) Data {
	if d == nil {
		return nil
	}
	return Merge(d, nil)
}

// ToData переводит структуру в Data через JSON; поле id не хранится.
func ToData(v any) (Data, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	delete(d, IDField)
	return d, nil
}
