package store

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id                 TEXT PRIMARY KEY,
    source             TEXT NOT NULL,
    external_id        TEXT NOT NULL,
    title              TEXT NOT NULL,
    title_translated   TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL DEFAULT '',
    summary            TEXT NOT NULL DEFAULT '',
    author             TEXT NOT NULL DEFAULT '',
    language           TEXT NOT NULL DEFAULT '',
    tags               TEXT NOT NULL DEFAULT '[]',
    published_at       DATETIME NOT NULL,
    collected_at       DATETIME NOT NULL,
    graph_processed_at DATETIME,
    UNIQUE(source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_articles_graph_pending ON articles(graph_processed_at);

CREATE TABLE IF NOT EXISTS trending_cache (
    cache_key   TEXT PRIMARY KEY,
    payload     TEXT NOT NULL,
    computed_at DATETIME NOT NULL,
    expires_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    entity_type TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS relations (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL REFERENCES entities(id),
    target_id     TEXT NOT NULL REFERENCES entities(id),
    relation_type TEXT NOT NULL,
    weight        REAL NOT NULL,
    evidence      TEXT NOT NULL DEFAULT '[]',
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL,
    UNIQUE(source_id, target_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);

CREATE TABLE IF NOT EXISTS entity_mentions (
    entity_id  TEXT NOT NULL REFERENCES entities(id),
    article_id TEXT NOT NULL REFERENCES articles(id),
    PRIMARY KEY (entity_id, article_id)
);

CREATE TABLE IF NOT EXISTS review_cards (
    user_id          TEXT NOT NULL,
    item_id          TEXT NOT NULL,
    repetitions      INTEGER NOT NULL DEFAULT 0,
    ease_factor      REAL NOT NULL DEFAULT 2.5,
    interval_days    INTEGER NOT NULL DEFAULT 0,
    last_quality     INTEGER NOT NULL DEFAULT 0,
    due_at           DATETIME NOT NULL,
    last_reviewed_at DATETIME NOT NULL,
    PRIMARY KEY (user_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_review_cards_due ON review_cards(user_id, due_at);
`
