package mysql

// schema creates the issue-tracker tables. The driver runs one statement
// per Exec.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS project (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		analysisMethod VARCHAR(45) NOT NULL,
		UNIQUE KEY project_name_method (name, analysisMethod)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS person (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email1 VARCHAR(255) NOT NULL,
		projectId BIGINT NOT NULL,
		UNIQUE KEY person_project_email (projectId, email1),
		CONSTRAINT person_project FOREIGN KEY (projectId) REFERENCES project (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS issue (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		bugId VARCHAR(45) NOT NULL,
		creationDate DATETIME NOT NULL,
		modifiedDate DATETIME NULL,
		url VARCHAR(255) NULL,
		resolution VARCHAR(45) NULL,
		severity VARCHAR(45) NULL,
		priority VARCHAR(45) NULL,
		createdBy BIGINT NULL,
		assignedTo BIGINT NULL,
		projectId BIGINT NOT NULL,
		status VARCHAR(45) NULL,
		subComponent VARCHAR(255) NULL,
		subSubComponent VARCHAR(255) NULL,
		KEY issue_project (projectId),
		CONSTRAINT issue_project_fk FOREIGN KEY (projectId) REFERENCES project (id),
		CONSTRAINT issue_created_by FOREIGN KEY (createdBy) REFERENCES person (id),
		CONSTRAINT issue_assigned_to FOREIGN KEY (assignedTo) REFERENCES person (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS issue_history (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		changeDate DATETIME NOT NULL,
		field VARCHAR(255) NOT NULL,
		oldValue TEXT NULL,
		newValue TEXT NULL,
		who BIGINT NULL,
		issueId BIGINT NOT NULL,
		CONSTRAINT history_issue FOREIGN KEY (issueId) REFERENCES issue (id),
		CONSTRAINT history_who FOREIGN KEY (who) REFERENCES person (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS issue_comment (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		who BIGINT NULL,
		fk_issueId BIGINT NOT NULL,
		commentDate DATETIME NOT NULL,
		CONSTRAINT comment_issue FOREIGN KEY (fk_issueId) REFERENCES issue (id),
		CONSTRAINT comment_who FOREIGN KEY (who) REFERENCES person (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS cc_list (
		issueId BIGINT NOT NULL,
		who BIGINT NOT NULL,
		CONSTRAINT cc_issue FOREIGN KEY (issueId) REFERENCES issue (id),
		CONSTRAINT cc_who FOREIGN KEY (who) REFERENCES person (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS issue_dependencies (
		issueId BIGINT NOT NULL,
		dependsOn BIGINT NOT NULL,
		CONSTRAINT dep_issue FOREIGN KEY (issueId) REFERENCES issue (id),
		CONSTRAINT dep_target FOREIGN KEY (dependsOn) REFERENCES issue (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS issue_duplicates (
		duplicateIssueId BIGINT NOT NULL,
		originalIssueId BIGINT NOT NULL,
		CONSTRAINT dup_issue FOREIGN KEY (duplicateIssueId) REFERENCES issue (id),
		CONSTRAINT dup_original FOREIGN KEY (originalIssueId) REFERENCES issue (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
