package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/store"
)

// New wraps an open database in a store.Store speaking the given dialect.
func New(db *sql.DB, d Dialect) store.Store {
	return &sqlStore{db: db, d: d}
}

type sqlStore struct {
	db *sql.DB
	d  Dialect
}

func (s *sqlStore) Areas() store.Areas             { return &areas{s} }
func (s *sqlStore) Catalog() store.Catalog         { return &catalog{s} }
func (s *sqlStore) Credentials() store.Credentials { return &credentials{s} }
func (s *sqlStore) Executions() store.Executions   { return &executions{s} }
func (s *sqlStore) Close() error                   { return s.db.Close() }

// HealthPing implements store.Pinger.
func (s *sqlStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.Rebind(q), args...)
}

func (s *sqlStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.Rebind(q), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.Rebind(q), args...)
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return err
}

func marshalJSON(v any) (jsonText, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return b, nil
}

func unmarshalParams(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// --- Areas ---
type areas struct{ s *sqlStore }

const areaColumns = `
    a.area_id, a.user_id, a.name,
    a.action_id, ac.service, ac.identifier,
    a.reaction_id, rc.service, rc.identifier,
    a.action_params, a.reaction_params, a.is_active, a.last_executed_at, a.creation_time
    FROM areas a
    LEFT JOIN capabilities ac ON ac.id = a.action_id
    LEFT JOIN capabilities rc ON rc.id = a.reaction_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArea(r rowScanner) (*model.Area, error) {
	var (
		out                        model.Area
		actSvc, actID, reSvc, reID sql.NullString
		actParams, reParams        []byte
		last, created              nullTime
	)
	if err := r.Scan(
		&out.AreaID, &out.UserID, &out.Name,
		&out.Action.CapabilityID, &actSvc, &actID,
		&out.Reaction.CapabilityID, &reSvc, &reID,
		&actParams, &reParams, &out.Active, &last, &created,
	); err != nil {
		return nil, err
	}
	out.Action.Service, out.Action.Identifier = actSvc.String, actID.String
	out.Reaction.Service, out.Reaction.Identifier = reSvc.String, reID.String
	var err error
	if out.ActionParams, err = unmarshalParams(actParams); err != nil {
		return nil, fmt.Errorf("area %s action_params: %w", out.AreaID, err)
	}
	if out.ReactionParams, err = unmarshalParams(reParams); err != nil {
		return nil, fmt.Errorf("area %s reaction_params: %w", out.AreaID, err)
	}
	out.LastExecutedAt = last.ptr()
	out.CreationTime = created.Time
	return &out, nil
}

func (a *areas) Create(ctx context.Context, m *model.Area) (*model.Area, error) {
	if m.UserID == "" || m.Name == "" {
		return nil, fmt.Errorf("%w: user and name are required", model.ErrValidation)
	}
	action, err := a.s.Catalog().GetCapability(ctx, m.Action.CapabilityID)
	if err != nil {
		return nil, fmt.Errorf("%w: action %q: %v", model.ErrValidation, m.Action.CapabilityID, err)
	}
	reaction, err := a.s.Catalog().GetCapability(ctx, m.Reaction.CapabilityID)
	if err != nil {
		return nil, fmt.Errorf("%w: reaction %q: %v", model.ErrValidation, m.Reaction.CapabilityID, err)
	}
	if action.Kind != model.KindAction || reaction.Kind != model.KindReaction {
		return nil, fmt.Errorf("%w: action/reaction kinds do not match", model.ErrValidation)
	}

	actParams, err := marshalJSON(m.ActionParams)
	if err != nil {
		return nil, err
	}
	reParams, err := marshalJSON(m.ReactionParams)
	if err != nil {
		return nil, err
	}

	out := *m
	if out.AreaID == "" {
		out.AreaID = uuid.New().String()
	}
	out.CreationTime = time.Now().UTC()
	out.Action = model.Binding{CapabilityID: action.ID, Service: action.Service, Identifier: action.Identifier}
	out.Reaction = model.Binding{CapabilityID: reaction.ID, Service: reaction.Service, Identifier: reaction.Identifier}

	var last any
	if m.LastExecutedAt != nil {
		last = a.s.d.Time(*m.LastExecutedAt)
	}
	if _, err := a.s.exec(ctx, `
        INSERT INTO areas (area_id, user_id, name, action_id, reaction_id, action_params, reaction_params, is_active, last_executed_at, creation_time)
        VALUES (?,?,?,?,?,?,?,?,?,?)
    `, out.AreaID, out.UserID, out.Name, action.ID, reaction.ID, actParams, reParams, out.Active, last, a.s.d.Time(out.CreationTime)); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *areas) Get(ctx context.Context, areaID string) (*model.Area, error) {
	row := a.s.queryRow(ctx, `SELECT `+areaColumns+` WHERE a.area_id = ?`, areaID)
	out, err := scanArea(row)
	if err != nil {
		return nil, notFound(err, "area "+areaID)
	}
	return out, nil
}

func (a *areas) List(ctx context.Context, userID string) ([]*model.Area, error) {
	return a.list(ctx, `SELECT `+areaColumns+` WHERE a.user_id = ? ORDER BY a.creation_time, a.area_id`, userID)
}

func (a *areas) ListActive(ctx context.Context) ([]*model.Area, error) {
	return a.list(ctx, `SELECT `+areaColumns+` WHERE a.is_active = ? ORDER BY a.creation_time, a.area_id`, true)
}

func (a *areas) list(ctx context.Context, q string, args ...any) ([]*model.Area, error) {
	rows, err := a.s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Area
	for rows.Next() {
		m, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (a *areas) AdvanceWatermark(ctx context.Context, areaID string, at time.Time) error {
	ts := a.s.d.Time(at)
	res, err := a.s.exec(ctx, `
        UPDATE areas SET last_executed_at = ?
        WHERE area_id = ? AND (last_executed_at IS NULL OR last_executed_at < ?)
    `, ts, areaID, ts)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	return a.exists(ctx, areaID)
}

func (a *areas) SetActive(ctx context.Context, areaID string, active bool) error {
	res, err := a.s.exec(ctx, `UPDATE areas SET is_active = ? WHERE area_id = ?`, active, areaID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("area %s: %w", areaID, model.ErrNotFound)
	}
	return nil
}

func (a *areas) Delete(ctx context.Context, areaID string) error {
	tx, err := a.s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, a.s.d.Rebind(`DELETE FROM executions WHERE area_id = ?`), areaID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, a.s.d.Rebind(`DELETE FROM areas WHERE area_id = ?`), areaID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("area %s: %w", areaID, model.ErrNotFound)
	}
	return tx.Commit()
}

func (a *areas) exists(ctx context.Context, areaID string) error {
	var one int
	if err := a.s.queryRow(ctx, `SELECT 1 FROM areas WHERE area_id = ?`, areaID).Scan(&one); err != nil {
		return notFound(err, "area "+areaID)
	}
	return nil
}

// --- Catalog ---
type catalog struct{ s *sqlStore }

func (c *catalog) PutService(ctx context.Context, m *model.Service) error {
	if m.Name == "" {
		return fmt.Errorf("%w: service name is required", model.ErrValidation)
	}
	_, err := c.s.exec(ctx, `
        INSERT INTO services (name, auth_type, description) VALUES (?,?,?)
        ON CONFLICT (name) DO UPDATE SET auth_type = excluded.auth_type, description = excluded.description
    `, m.Name, m.AuthType, m.Description)
	return err
}

func (c *catalog) ListServices(ctx context.Context) ([]*model.Service, error) {
	rows, err := c.s.query(ctx, `SELECT name, auth_type, description FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Service
	for rows.Next() {
		var m model.Service
		if err := rows.Scan(&m.Name, &m.AuthType, &m.Description); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

func (c *catalog) PutCapability(ctx context.Context, m *model.Capability) error {
	if m.Service == "" || m.Identifier == "" {
		return fmt.Errorf("%w: capability needs service and identifier", model.ErrValidation)
	}
	if m.Kind != model.KindAction && m.Kind != model.KindReaction {
		return fmt.Errorf("%w: unknown capability kind %q", model.ErrValidation, m.Kind)
	}
	if m.ID == "" {
		m.ID = model.CapabilityID(m.Service, m.Kind, m.Identifier)
	}
	fields, err := marshalJSON(m.Fields)
	if err != nil {
		return err
	}
	if fields == nil {
		fields = jsonText("[]")
	}
	_, err = c.s.exec(ctx, `
        INSERT INTO capabilities (id, service, kind, identifier, name, description, fields) VALUES (?,?,?,?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description, fields = excluded.fields
    `, m.ID, m.Service, string(m.Kind), m.Identifier, m.Name, m.Description, fields)
	return err
}

func scanCapability(r rowScanner) (*model.Capability, error) {
	var (
		m      model.Capability
		kind   string
		fields []byte
	)
	if err := r.Scan(&m.ID, &m.Service, &kind, &m.Identifier, &m.Name, &m.Description, &fields); err != nil {
		return nil, err
	}
	m.Kind = model.CapabilityKind(kind)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &m.Fields); err != nil {
			return nil, fmt.Errorf("capability %s fields: %w", m.ID, err)
		}
	}
	return &m, nil
}

func (c *catalog) GetCapability(ctx context.Context, id string) (*model.Capability, error) {
	row := c.s.queryRow(ctx, `SELECT id, service, kind, identifier, name, description, fields FROM capabilities WHERE id = ?`, id)
	m, err := scanCapability(row)
	if err != nil {
		return nil, notFound(err, "capability "+id)
	}
	return m, nil
}

func (c *catalog) ListCapabilities(ctx context.Context) ([]*model.Capability, error) {
	rows, err := c.s.query(ctx, `SELECT id, service, kind, identifier, name, description, fields FROM capabilities ORDER BY service, kind, identifier`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Capability
	for rows.Next() {
		m, err := scanCapability(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// --- Credentials ---
type credentials struct{ s *sqlStore }

func (c *credentials) Get(ctx context.Context, userID, service string) (*model.Credential, error) {
	var (
		out             model.Credential
		refresh         sql.NullString
		expires, update nullTime
	)
	row := c.s.queryRow(ctx, `
        SELECT user_id, service, access_token, refresh_token, expires_at, update_time
        FROM credentials WHERE user_id = ? AND service = ?
    `, userID, service)
	if err := row.Scan(&out.UserID, &out.Service, &out.AccessToken, &refresh, &expires, &update); err != nil {
		return nil, notFound(err, "credential "+userID+"/"+service)
	}
	out.RefreshToken = refresh.String
	out.ExpiresAt = expires.ptr()
	out.UpdateTime = update.Time
	return &out, nil
}

func (c *credentials) Put(ctx context.Context, m *model.Credential) error {
	if m.UserID == "" || m.Service == "" {
		return fmt.Errorf("%w: credential needs user and service", model.ErrValidation)
	}
	var expires any
	if m.ExpiresAt != nil {
		expires = c.s.d.Time(*m.ExpiresAt)
	}
	m.UpdateTime = time.Now().UTC()
	_, err := c.s.exec(ctx, `
        INSERT INTO credentials (user_id, service, access_token, refresh_token, expires_at, update_time)
        VALUES (?,?,?,?,?,?)
        ON CONFLICT (user_id, service) DO UPDATE SET
            access_token = excluded.access_token,
            refresh_token = excluded.refresh_token,
            expires_at = excluded.expires_at,
            update_time = excluded.update_time
    `, m.UserID, m.Service, m.AccessToken, m.RefreshToken, expires, c.s.d.Time(m.UpdateTime))
	return err
}

func (c *credentials) Delete(ctx context.Context, userID, service string) error {
	_, err := c.s.exec(ctx, `DELETE FROM credentials WHERE user_id = ? AND service = ?`, userID, service)
	return err
}

// --- Executions ---
type executions struct{ s *sqlStore }

func (e *executions) Append(ctx context.Context, m *model.Execution) error {
	if m.ExecutionID == "" {
		m.ExecutionID = uuid.New().String()
	}
	if m.ExecutedAt.IsZero() {
		m.ExecutedAt = time.Now().UTC()
	}
	snap, err := marshalJSON(m.Snapshot)
	if err != nil {
		return err
	}
	_, err = e.s.exec(ctx, `
        INSERT INTO executions (execution_id, area_id, outcome, success, message, snapshot, executed_at)
        VALUES (?,?,?,?,?,?,?)
    `, m.ExecutionID, m.AreaID, string(m.Outcome), m.Success, m.Message, snap, e.s.d.Time(m.ExecutedAt))
	return err
}

func (e *executions) List(ctx context.Context, areaID string, limit int) ([]*model.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := e.s.query(ctx, `
        SELECT execution_id, area_id, outcome, success, message, snapshot, executed_at
        FROM executions WHERE area_id = ? ORDER BY executed_at DESC LIMIT ?
    `, areaID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Execution
	for rows.Next() {
		var (
			m       model.Execution
			outcome string
			snap    []byte
			at      nullTime
		)
		if err := rows.Scan(&m.ExecutionID, &m.AreaID, &outcome, &m.Success, &m.Message, &snap, &at); err != nil {
			return nil, err
		}
		m.Outcome = model.Outcome(outcome)
		m.ExecutedAt = at.Time
		if m.Snapshot, err = unmarshalParams(snap); err != nil {
			return nil, fmt.Errorf("execution %s snapshot: %w", m.ExecutionID, err)
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}
