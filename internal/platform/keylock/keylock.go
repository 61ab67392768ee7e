// Package keylock oferece exclusão mútua por chave, usada pelos repositórios em memória
// para reproduzir o SELECT ... FOR UPDATE do PostgreSQL.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker serializa operações que compartilham a mesma chave
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New cria um Locker vazio
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock bloqueia a chave e retorna a função que a libera.
// A função de unlock pode ser chamada mais de uma vez sem efeito.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len retorna quantas chaves estão bloqueadas ou aguardando
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
