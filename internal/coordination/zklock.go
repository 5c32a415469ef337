// Package coordination provides the cross-process lock the counter
// allocator uses when several API replicas share one cache and backing
// log pair.
package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	sessionTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
)

// ZKLock wraps a zookeeper recipe lock under <rootPath>/counter-lock.
type ZKLock struct {
	conn *zk.Conn
	lock *zk.Lock
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKLock(servers []string, rootPath string) (*ZKLock, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}

	l := &ZKLock{
		conn: conn,
		lock: zk.NewLock(conn, rootPath+"/counter-lock", zk.WorldACL(zk.PermAll)),
	}
	if err := l.waitConnected(connectTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

func (l *ZKLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("zk lock: %w", err)
	}
	return nil
}

func (l *ZKLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("zk unlock: %w", err)
	}
	return nil
}

func (l *ZKLock) Close() error {
	l.conn.Close()
	return nil
}

func (l *ZKLock) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := l.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
