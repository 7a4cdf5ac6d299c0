package sqlinline

const QSelectClientSession = `--sql 3f9b2c7e-1d4a-4c8e-9f61-7a2e5b0d9c34
select access_token, refresh_token, profile
from client_sessions
where name = $1::text
limit 1;
`

const QUpsertClientSession = `--sql 8c41d0a6-52e7-4b3f-a0d9-6e18f4c27b95
insert into client_sessions (name, access_token, refresh_token, profile, updated_at)
values ($1::text, $2::text, $3::text, coalesce($4::jsonb, '{}'::jsonb), now())
on conflict (name) do update set
    access_token = excluded.access_token,
    refresh_token = excluded.refresh_token,
    profile = excluded.profile,
    updated_at = now();
`

const QDeleteClientSession = `--sql d27a9e15-0b6c-4f83-8e4a-95c1b7f03d62
delete from client_sessions
where name = $1::text;
`

const QCreateClientSessions = `--sql 5e0c8b3d-9a71-4d26-b4f5-1c7e2a6d80f9
create table if not exists client_sessions (
    name text primary key,
    access_token text not null,
    refresh_token text not null,
    profile jsonb not null default '{}'::jsonb,
    updated_at timestamptz not null default now()
);
`
