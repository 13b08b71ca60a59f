package sqlite

// schema creates the issue-tracker tables. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS project (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		analysisMethod TEXT NOT NULL,
		UNIQUE (name, analysisMethod)
	)`,
	`CREATE TABLE IF NOT EXISTS person (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email1 TEXT NOT NULL,
		projectId INTEGER NOT NULL REFERENCES project(id),
		UNIQUE (projectId, email1)
	)`,
	`CREATE TABLE IF NOT EXISTS issue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bugId TEXT NOT NULL,
		creationDate DATETIME NOT NULL,
		modifiedDate DATETIME,
		url TEXT,
		resolution TEXT,
		severity TEXT,
		priority TEXT,
		createdBy INTEGER REFERENCES person(id),
		assignedTo INTEGER REFERENCES person(id),
		projectId INTEGER NOT NULL REFERENCES project(id),
		status TEXT,
		subComponent TEXT,
		subSubComponent TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_issue_project ON issue(projectId)`,
	`CREATE TABLE IF NOT EXISTS issue_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		changeDate DATETIME NOT NULL,
		field TEXT NOT NULL,
		oldValue TEXT,
		newValue TEXT,
		who INTEGER REFERENCES person(id),
		issueId INTEGER NOT NULL REFERENCES issue(id)
	)`,
	`CREATE TABLE IF NOT EXISTS issue_comment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		who INTEGER REFERENCES person(id),
		fk_issueId INTEGER NOT NULL REFERENCES issue(id),
		commentDate DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cc_list (
		issueId INTEGER NOT NULL REFERENCES issue(id),
		who INTEGER NOT NULL REFERENCES person(id)
	)`,
	`CREATE TABLE IF NOT EXISTS issue_dependencies (
		issueId INTEGER NOT NULL REFERENCES issue(id),
		dependsOn INTEGER NOT NULL REFERENCES issue(id)
	)`,
	`CREATE TABLE IF NOT EXISTS issue_duplicates (
		duplicateIssueId INTEGER NOT NULL REFERENCES issue(id),
		originalIssueId INTEGER NOT NULL REFERENCES issue(id)
	)`,
}
