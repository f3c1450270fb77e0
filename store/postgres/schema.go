package postgres

import "context"

// Schema creates the tables used by Store. Statements are idempotent.
const Schema = `
create table if not exists users (
	id               text primary key,
	username         text not null unique,
	credential_hash  text not null,
	roles            jsonb not null default '[]',
	attributes       jsonb not null default '{}',
	contact_channels jsonb not null default '{}',
	mfa_enabled      boolean not null default false,
	mfa_secret       text not null default '',
	failed_attempts  integer not null default 0,
	locked_until     timestamptz,
	last_login_at    timestamptz,
	last_known_ip    text not null default '',
	last_known_geo   jsonb,
	active           boolean not null default true
);
create unique index if not exists users_username_lower on users (lower(username));

create table if not exists backup_codes (
	user_id   text not null references users(id) on delete cascade,
	code_hash text not null,
	primary key (user_id, code_hash)
);

create table if not exists role_grants (
	role     text not null,
	resource text not null,
	actions  jsonb not null,
	primary key (role, resource)
);

create table if not exists abac_policies (
	id          text primary key,
	description text not null default '',
	resource    text not null,
	actions     jsonb not null,
	conditions  jsonb not null default '[]'
);
`

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}
