package repo

import (
	"context"
	"database/sql"

	"claimbot/internal/domain"
)

const tenantCols = `id,name,chat_team_id,chat_bot_user_id,tracker_workspace_id,sheet_id,notify_url,created_at`

func scanTenant(scan func(dest ...any) error) (domain.Tenant, error) {
	var t domain.Tenant
	var botUser, notifyURL sql.NullString
	err := scan(&t.ID, &t.Name, &t.ChatTeamID, &botUser, &t.TrackerWorkspaceID, &t.SheetID, &notifyURL, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if botUser.Valid {
		t.ChatBotUserID = botUser.String
	}
	if notifyURL.Valid {
		t.NotifyURL = notifyURL.String
	}
	return t, nil
}

func (r Repo) InsertTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tenants(`+tenantCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.ChatTeamID, nullable(t.ChatBotUserID), t.TrackerWorkspaceID, t.SheetID, nullable(t.NotifyURL), t.CreatedAt)
	return err
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id=?`, id)
	return scanTenant(row.Scan)
}

// TenantByTrackerWorkspace resolves the tenant a tracker event belongs to.
// The unique index on tracker_workspace_id keeps this a single-row lookup.
func (r Repo) TenantByTrackerWorkspace(ctx context.Context, workspaceID string) (domain.Tenant, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tenantCols+` FROM tenants WHERE tracker_workspace_id=?`, workspaceID)
	return scanTenant(row.Scan)
}

func (r Repo) TenantByChatTeam(ctx context.Context, teamID string) (domain.Tenant, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tenantCols+` FROM tenants WHERE chat_team_id=?`, teamID)
	return scanTenant(row.Scan)
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+tenantCols+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
