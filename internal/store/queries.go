package store

// SQL queries for the classification_record table, one const per query in
// the style of this codebase's other Postgres-backed packages.
const (
	queryUpsertRecord = `
		INSERT INTO classification_record (
			message_id, ts, source_queue, category, confidence, reasoning,
			model_tag, tokens_input, tokens_output, action_taken, outcome,
			retry_count, retry_scheduled_for, archive_location, incident_key,
			suspected_deployment, similar_failures_count, semantic_hash, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (message_id) DO UPDATE SET
			ts = EXCLUDED.ts,
			source_queue = EXCLUDED.source_queue,
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			model_tag = EXCLUDED.model_tag,
			tokens_input = EXCLUDED.tokens_input,
			tokens_output = EXCLUDED.tokens_output,
			action_taken = EXCLUDED.action_taken,
			outcome = EXCLUDED.outcome,
			retry_count = EXCLUDED.retry_count,
			retry_scheduled_for = EXCLUDED.retry_scheduled_for,
			archive_location = EXCLUDED.archive_location,
			incident_key = EXCLUDED.incident_key,
			suspected_deployment = EXCLUDED.suspected_deployment,
			similar_failures_count = EXCLUDED.similar_failures_count,
			semantic_hash = EXCLUDED.semantic_hash,
			expires_at = EXCLUDED.expires_at
	`

	queryGetRecord = `
		SELECT message_id, ts, source_queue, category, confidence, reasoning,
		       model_tag, tokens_input, tokens_output, action_taken, outcome,
		       retry_count, retry_scheduled_for, archive_location, incident_key,
		       suspected_deployment, similar_failures_count, semantic_hash
		FROM classification_record
		WHERE message_id = $1
	`

	queryUpdateOutcome = `
		UPDATE classification_record
		SET outcome = $2, retry_scheduled_for = $3, archive_location = $4, incident_key = $5
		WHERE message_id = $1
	`

	// queryCountByQueueSince backs the ByQueue index: similar-failure
	// counting for the Monitor's enrichment step.
	queryCountByQueueSince = `
		SELECT COUNT(*) FROM classification_record
		WHERE source_queue = $1 AND ts > $2
	`

	// queryListByCategorySince backs the by-category-by-timestamp index.
	queryListByCategorySince = `
		SELECT message_id, ts, source_queue, category, confidence, reasoning,
		       model_tag, tokens_input, tokens_output, action_taken, outcome,
		       retry_count, retry_scheduled_for, archive_location, incident_key,
		       suspected_deployment, similar_failures_count, semantic_hash
		FROM classification_record
		WHERE category = $1 AND ts > $2
		ORDER BY ts DESC
	`

	// queryListBySemanticHash backs the by-semantic-hash index.
	queryListBySemanticHash = `
		SELECT message_id, ts, source_queue, category, confidence, reasoning,
		       model_tag, tokens_input, tokens_output, action_taken, outcome,
		       retry_count, retry_scheduled_for, archive_location, incident_key,
		       suspected_deployment, similar_failures_count, semantic_hash
		FROM classification_record
		WHERE semantic_hash = $1
		ORDER BY ts DESC
	`

	// queryListByDeploymentSince backs the by-deployment-by-timestamp index.
	queryListByDeploymentSince = `
		SELECT message_id, ts, source_queue, category, confidence, reasoning,
		       model_tag, tokens_input, tokens_output, action_taken, outcome,
		       retry_count, retry_scheduled_for, archive_location, incident_key,
		       suspected_deployment, similar_failures_count, semantic_hash
		FROM classification_record
		WHERE suspected_deployment = $1 AND ts > $2
		ORDER BY ts DESC
	`
)
