// Package notification содержит ключи дедупликации и журнал
// отправленных уведомлений.
package notification

import (
	"context"
	"fmt"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEDUP KEY
// ══════════════════════════════════════════════════════════════════════════════

// Window - окно напоминания о дедлайне.
type Window string

const (
	// WindowOneDay - примерно сутки до дедлайна.
	WindowOneDay Window = "1_day"
	// WindowTwoHours - примерно два часа до дедлайна.
	WindowTwoHours Window = "2_hours"
)

// Key - ключ дедупликации уведомления. Одинаковый ключ для одного
// пользователя означает одно и то же уведомление.
type Key string

// DeadlineKey строит ключ напоминания о дедлайне темы.
func DeadlineKey(topicID int64, w Window) Key {
	return Key(fmt.Sprintf("topic:%d:%s", topicID, w))
}

// AbsenceKey строит ключ предупреждения о пропусках. Ключ содержит
// точное число часов: при росте пропусков уведомление сработает снова.
func AbsenceKey(subjectID int64, hours int) Key {
	return Key(fmt.Sprintf("subject:%d:nb_%d", subjectID, hours))
}

// String возвращает строковое представление ключа.
func (k Key) String() string {
	return string(k)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger - журнал отправленных уведомлений. Запись делается только
// после успешной отправки, никогда до неё.
type Ledger interface {
	// Has проверяет, было ли уведомление уже отправлено.
	Has(ctx context.Context, userID string, key Key) (bool, error)

	// Record отмечает уведомление отправленным. Повторная запись
	// одного ключа не является ошибкой.
	Record(ctx context.Context, userID string, key Key) error
}

// MemoryLedger - журнал в памяти процесса. Живёт до перезапуска,
// используется как быстрый слой перед персистентным журналом.
type MemoryLedger struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewMemoryLedger создаёт пустой журнал в памяти.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

func (m *MemoryLedger) composite(userID string, key Key) string {
	return userID + ":" + key.String()
}

// Has проверяет наличие ключа.
func (m *MemoryLedger) Has(_ context.Context, userID string, key Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[m.composite(userID, key)]
	return ok, nil
}

// Record отмечает ключ отправленным.
func (m *MemoryLedger) Record(_ context.Context, userID string, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[m.composite(userID, key)] = struct{}{}
	return nil
}

// LayeredLedger объединяет несколько журналов: ключ считается
// записанным, если он есть хотя бы в одном слое; запись идёт во все.
type LayeredLedger struct {
	layers []Ledger
}

// Layered создаёт составной журнал.
func Layered(layers ...Ledger) *LayeredLedger {
	return &LayeredLedger{layers: layers}
}

// Has возвращает true, если ключ есть хотя бы в одном слое.
// Ошибка слоя не скрывает положительный ответ другого слоя.
func (l *LayeredLedger) Has(ctx context.Context, userID string, key Key) (bool, error) {
	var firstErr error
	for _, layer := range l.layers {
		ok, err := layer.Has(ctx, userID, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

// Record пишет ключ во все слои, возвращая первую ошибку.
func (l *LayeredLedger) Record(ctx context.Context, userID string, key Key) error {
	var firstErr error
	for _, layer := range l.layers {
		if err := layer.Record(ctx, userID, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
