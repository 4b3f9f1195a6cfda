package mysql

// Unique key (id, store, region): a store may reuse review ids across
// regional feeds, so the id alone does not identify a record.
const createReviewsSQL = `
CREATE TABLE IF NOT EXISTS reviews (
  id         VARCHAR(191)  NOT NULL,
  app_id     VARCHAR(191)  NOT NULL,
  app_name   VARCHAR(255)  NOT NULL,
  store      VARCHAR(16)   NOT NULL,
  rating     TINYINT       NOT NULL,
  title      TEXT,
  content    TEXT          NOT NULL,
  author     VARCHAR(255)  NOT NULL,
  date       DATETIME      NOT NULL,
  region     VARCHAR(8)    NOT NULL,
  version    VARCHAR(64),
  helpful    INT           NOT NULL DEFAULT 0,
  created_at TIMESTAMP     DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (id, store, region),
  KEY idx_reviews_app    (app_id),
  KEY idx_reviews_store  (store),
  KEY idx_reviews_region (region),
  KEY idx_reviews_rating (rating),
  KEY idx_reviews_date   (date)
)
`

const createAppsSQL = `
CREATE TABLE IF NOT EXISTS apps (
  id         VARCHAR(191) NOT NULL,
  store      VARCHAR(16)  NOT NULL,
  name       VARCHAR(255) NOT NULL,
  developer  VARCHAR(255) NOT NULL,
  icon       TEXT,
  created_at TIMESTAMP    DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (id, store)
)
`

const insertReviewsPrefix = "INSERT INTO reviews\n" +
	"  (id, app_id, app_name, store, rating, title, content, author, date, region, version, helpful)\nVALUES "

const insertReviewsOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  app_id   = VALUES(app_id),\n" +
	"  app_name = VALUES(app_name),\n" +
	"  rating   = VALUES(rating),\n" +
	"  title    = VALUES(title),\n" +
	"  content  = VALUES(content),\n" +
	"  author   = VALUES(author),\n" +
	"  date     = VALUES(date),\n" +
	"  version  = VALUES(version),\n" +
	"  helpful  = VALUES(helpful)\n"

const upsertAppSQL = `
INSERT INTO apps (id, store, name, developer, icon)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name      = VALUES(name),
  developer = VALUES(developer),
  icon      = VALUES(icon)
`
