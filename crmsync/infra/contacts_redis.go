package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"crm-sync-gateway/crmsync/domain"

	"github.com/redis/go-redis/v9"
)

// RedisContacts lê snapshots de contato de hashes <prefix>:<id>.
//
// É o ponto de leitura compartilhado entre quem gera eventos (synctool) e os
// workers; o store de entidades de verdade fica fora deste projeto.
type RedisContacts struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisContacts(rdb redis.UniversalClient, prefix string) *RedisContacts {
	if prefix == "" {
		prefix = "crmsync:contact"
	}
	return &RedisContacts{rdb: rdb, prefix: strings.TrimRight(prefix, ":")}
}

// Put grava o contato. ID zero recebe um id novo via INCR.
func (r *RedisContacts) Put(ctx context.Context, c domain.Contact) (domain.Contact, error) {
	if c.ID == 0 {
		id, err := r.rdb.Incr(ctx, r.prefix+":seq").Result()
		if err != nil {
			return domain.Contact{}, err
		}
		c.ID = id
	}
	err := r.rdb.HSet(ctx, r.key(c.ID), map[string]any{
		"email":      c.Email,
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"company":    c.Company,
		"status":     c.Status.String(),
	}).Err()
	if err != nil {
		return domain.Contact{}, err
	}
	return c, nil
}

func (r *RedisContacts) Delete(ctx context.Context, id int64) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}

func (r *RedisContacts) Contact(ctx context.Context, id int64) (domain.Contact, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return domain.Contact{}, err
	}
	if len(fields) == 0 {
		return domain.Contact{}, domain.ErrEntityNotFound
	}
	status, ok := domain.ParseStatus(fields["status"])
	if !ok {
		// dado gravado inválido não se corrige com retry
		return domain.Contact{}, domain.Permanent(fmt.Errorf("contact %d: unknown status %q", id, fields["status"]))
	}
	return domain.Contact{
		ID:        id,
		Email:     fields["email"],
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Company:   fields["company"],
		Status:    status,
	}, nil
}

func (r *RedisContacts) key(id int64) string {
	return r.prefix + ":" + strconv.FormatInt(id, 10)
}
