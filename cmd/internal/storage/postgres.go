package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"parley/cmd/internal/chat"
	"parley/cmd/internal/social"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements every store boundary on top of PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// Option configures PostgresStore behavior.
type Option func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "parley").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) Option {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("storage: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("storage: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "parley",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("storage: nil pool")
	}
	return st, nil
}

// ---- chat.UserStore ----

func (s *PostgresStore) UserByID(ctx context.Context, id int64) (chat.User, error) {
	users := pgIdent(s.schema, "users")

	var u chat.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, full_name, color FROM `+users+` WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.FullName, &u.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, fmt.Errorf("user %d: %w", id, chat.ErrNotFound)
	}
	if err != nil {
		return chat.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) UserByUsername(ctx context.Context, username string) (chat.User, error) {
	users := pgIdent(s.schema, "users")

	var u chat.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, full_name, color FROM `+users+` WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.FullName, &u.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, fmt.Errorf("user %q: %w", username, chat.ErrNotFound)
	}
	if err != nil {
		return chat.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u chat.User, passwordHash string) (chat.User, error) {
	users := pgIdent(s.schema, "users")

	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+users+` (username, full_name, color, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		u.Username, u.FullName, u.Color, passwordHash,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return chat.User{}, fmt.Errorf("username %q taken: %w", u.Username, chat.ErrInvalidInput)
	}
	if err != nil {
		return chat.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) PasswordHash(ctx context.Context, username string) (chat.User, string, error) {
	users := pgIdent(s.schema, "users")

	var (
		u    chat.User
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, full_name, color, password_hash FROM `+users+` WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.FullName, &u.Color, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, "", fmt.Errorf("user %q: %w", username, chat.ErrNotFound)
	}
	if err != nil {
		return chat.User{}, "", err
	}
	return u, hash, nil
}

// ---- chat.GroupStore ----

func (s *PostgresStore) GroupByID(ctx context.Context, id int64) (chat.Group, error) {
	groups := pgIdent(s.schema, "groups")

	var g chat.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, owner_id, private, COALESCE(join_code, '') FROM `+groups+` WHERE id = $1`,
		id,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &g.Private, &g.JoinCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Group{}, fmt.Errorf("group %d: %w", id, chat.ErrNotFound)
	}
	if err != nil {
		return chat.Group{}, err
	}
	return g, nil
}

func (s *PostgresStore) GroupByJoinCode(ctx context.Context, code string) (chat.Group, error) {
	groups := pgIdent(s.schema, "groups")

	var g chat.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, owner_id, private, COALESCE(join_code, '') FROM `+groups+` WHERE join_code = $1`,
		code,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &g.Private, &g.JoinCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Group{}, fmt.Errorf("join code %q: %w", code, chat.ErrNotFound)
	}
	if err != nil {
		return chat.Group{}, err
	}
	return g, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, g chat.Group, memberIDs []int64) (chat.Group, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return chat.Group{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	groups := pgIdent(s.schema, "groups")
	members := pgIdent(s.schema, "group_members")

	err = tx.QueryRow(ctx,
		`INSERT INTO `+groups+` (name, owner_id, private, join_code)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING id`,
		g.Name, g.OwnerID, g.Private, g.JoinCode,
	).Scan(&g.ID)
	if err != nil {
		return chat.Group{}, err
	}

	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+members+` (group_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			g.ID, userID,
		); err != nil {
			return chat.Group{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return chat.Group{}, err
	}
	return g, nil
}

func (s *PostgresStore) GroupsOf(ctx context.Context, userID int64) ([]chat.Group, error) {
	groups := pgIdent(s.schema, "groups")
	members := pgIdent(s.schema, "group_members")

	rows, err := s.pool.Query(ctx,
		`SELECT g.id, g.name, g.owner_id, g.private, COALESCE(g.join_code, '')
		   FROM `+groups+` g
		   JOIN `+members+` m ON m.group_id = g.id
		  WHERE m.user_id = $1
		  ORDER BY g.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanGroups(rows)
}

func (s *PostgresStore) GroupsAll(ctx context.Context) ([]chat.Group, error) {
	groups := pgIdent(s.schema, "groups")

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, owner_id, private, COALESCE(join_code, '') FROM `+groups+` ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanGroups(rows)
}

func scanGroups(rows pgx.Rows) ([]chat.Group, error) {
	out := make([]chat.Group, 0)
	for rows.Next() {
		var g chat.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.Private, &g.JoinCode); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MembersOf(ctx context.Context, groupID int64) ([]chat.User, error) {
	if _, err := s.GroupByID(ctx, groupID); err != nil {
		return nil, err
	}

	users := pgIdent(s.schema, "users")
	members := pgIdent(s.schema, "group_members")

	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.username, u.full_name, u.color
		   FROM `+users+` u
		   JOIN `+members+` m ON m.user_id = u.id
		  WHERE m.group_id = $1
		  ORDER BY u.id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]chat.User, 0)
	for rows.Next() {
		var u chat.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Color); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	members := pgIdent(s.schema, "group_members")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, groupID, userID int64) error {
	members := pgIdent(s.schema, "group_members")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+members+` (group_id, user_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		groupID, userID,
	)
	return err
}

func (s *PostgresStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	members := pgIdent(s.schema, "group_members")

	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+members+` WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	return err
}

// ---- chat.MessageStore ----

func (s *PostgresStore) Append(ctx context.Context, m chat.Message) (chat.Message, error) {
	if m.SenderID == 0 || m.Content == "" {
		return chat.Message{}, chat.ErrInvalidInput
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}

	messages := pgIdent(s.schema, "messages")

	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+messages+` (sender_id, sender_name, content, kind, group_id, recipient_id, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		m.SenderID, m.SenderName, m.Content, m.Kind, m.GroupID, m.RecipientID, m.SentAt,
	).Scan(&m.ID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Recent selects the newest limit messages descending, then flips the slice
// so callers get them oldest-first.
func (s *PostgresStore) Recent(ctx context.Context, groupID *int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	messages := pgIdent(s.schema, "messages")

	var (
		rows pgx.Rows
		err  error
	)
	if groupID == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, sender_id, sender_name, content, kind, group_id, recipient_id, sent_at
			   FROM `+messages+`
			  WHERE group_id IS NULL AND recipient_id IS NULL
			  ORDER BY sent_at DESC, id DESC
			  LIMIT $1`,
			limit,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, sender_id, sender_name, content, kind, group_id, recipient_id, sent_at
			   FROM `+messages+`
			  WHERE group_id = $1
			  ORDER BY sent_at DESC, id DESC
			  LIMIT $2`,
			*groupID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]chat.Message, 0, limit)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Content, &m.Kind, &m.GroupID, &m.RecipientID, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ---- social.FriendStore ----

func (s *PostgresStore) CreateRequest(ctx context.Context, requesterID, receiverID int64) (social.FriendRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return social.FriendRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	friends := pgIdent(s.schema, "friends")

	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM `+friends+`
		  WHERE (requester_id = $1 AND receiver_id = $2)
		     OR (requester_id = $2 AND receiver_id = $1)`,
		requesterID, receiverID,
	).Scan(&one)
	if err == nil {
		return social.FriendRequest{}, fmt.Errorf("request between %d and %d exists: %w", requesterID, receiverID, social.ErrDuplicate)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return social.FriendRequest{}, err
	}

	req := social.FriendRequest{
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      social.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO `+friends+` (requester_id, receiver_id, status, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		req.RequesterID, req.ReceiverID, req.Status, req.CreatedAt,
	).Scan(&req.ID)
	if err != nil {
		return social.FriendRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return social.FriendRequest{}, err
	}
	return req, nil
}

func (s *PostgresStore) RequestByID(ctx context.Context, id int64) (social.FriendRequest, error) {
	friends := pgIdent(s.schema, "friends")

	var req social.FriendRequest
	err := s.pool.QueryRow(ctx,
		`SELECT id, requester_id, receiver_id, status, created_at FROM `+friends+` WHERE id = $1`,
		id,
	).Scan(&req.ID, &req.RequesterID, &req.ReceiverID, &req.Status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return social.FriendRequest{}, fmt.Errorf("friend request %d: %w", id, social.ErrNotFound)
	}
	if err != nil {
		return social.FriendRequest{}, err
	}
	return req, nil
}

func (s *PostgresStore) PendingFor(ctx context.Context, receiverID int64) ([]social.FriendRequest, error) {
	friends := pgIdent(s.schema, "friends")

	rows, err := s.pool.Query(ctx,
		`SELECT id, requester_id, receiver_id, status, created_at
		   FROM `+friends+`
		  WHERE receiver_id = $1 AND status = $2
		  ORDER BY id`,
		receiverID, social.StatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]social.FriendRequest, 0)
	for rows.Next() {
		var req social.FriendRequest
		if err := rows.Scan(&req.ID, &req.RequesterID, &req.ReceiverID, &req.Status, &req.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AcceptRequest(ctx context.Context, id int64) error {
	friends := pgIdent(s.schema, "friends")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+friends+` SET status = $1 WHERE id = $2`,
		social.StatusAccepted, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("friend request %d: %w", id, social.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteRequest(ctx context.Context, id int64) error {
	friends := pgIdent(s.schema, "friends")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+friends+` WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) FriendIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	friends := pgIdent(s.schema, "friends")

	rows, err := s.pool.Query(ctx,
		`SELECT CASE WHEN requester_id = $1 THEN receiver_id ELSE requester_id END
		   FROM `+friends+`
		  WHERE (requester_id = $1 OR receiver_id = $1) AND status = $2
		  ORDER BY 1`,
		userID, social.StatusAccepted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteFriendship(ctx context.Context, userID, friendID int64) (bool, error) {
	friends := pgIdent(s.schema, "friends")

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+friends+`
		  WHERE (requester_id = $1 AND receiver_id = $2)
		     OR (requester_id = $2 AND receiver_id = $1)`,
		userID, friendID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ---- social.InviteStore ----

func (s *PostgresStore) CreateInvitation(ctx context.Context, groupID, inviterID, inviteeID int64) (social.GroupInvitation, error) {
	invitations := pgIdent(s.schema, "group_invitations")

	inv := social.GroupInvitation{
		GroupID:   groupID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		CreatedAt: time.Now().UTC(),
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+invitations+` (group_id, inviter_id, invitee_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		inv.GroupID, inv.InviterID, inv.InviteeID, inv.CreatedAt,
	).Scan(&inv.ID)
	if isUniqueViolation(err) {
		return social.GroupInvitation{}, fmt.Errorf("invitation for user %d to group %d exists: %w", inviteeID, groupID, social.ErrDuplicate)
	}
	if err != nil {
		return social.GroupInvitation{}, err
	}
	return inv, nil
}

func (s *PostgresStore) InvitationByID(ctx context.Context, id int64) (social.GroupInvitation, error) {
	invitations := pgIdent(s.schema, "group_invitations")

	var inv social.GroupInvitation
	err := s.pool.QueryRow(ctx,
		`SELECT id, group_id, inviter_id, invitee_id, created_at FROM `+invitations+` WHERE id = $1`,
		id,
	).Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeID, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return social.GroupInvitation{}, fmt.Errorf("invitation %d: %w", id, social.ErrNotFound)
	}
	if err != nil {
		return social.GroupInvitation{}, err
	}
	return inv, nil
}

func (s *PostgresStore) InvitationsFor(ctx context.Context, inviteeID int64) ([]social.GroupInvitation, error) {
	invitations := pgIdent(s.schema, "group_invitations")

	rows, err := s.pool.Query(ctx,
		`SELECT id, group_id, inviter_id, invitee_id, created_at
		   FROM `+invitations+`
		  WHERE invitee_id = $1
		  ORDER BY id`,
		inviteeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]social.GroupInvitation, 0)
	for rows.Next() {
		var inv social.GroupInvitation
		if err := rows.Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeID, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteInvitation(ctx context.Context, id int64) error {
	invitations := pgIdent(s.schema, "group_invitations")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+invitations+` WHERE id = $1`, id)
	return err
}

// ---- helpers ----

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
