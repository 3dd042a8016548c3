package db

// SchemaSQL contains the audit log schema initialization SQL.
// The table is append-only by convention: no query in this package issues
// UPDATE or DELETE against audit_record outside of WipeData.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS audit_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON audit_record TYPE string;
    DEFINE FIELD IF NOT EXISTS test_id ON audit_record TYPE string;
    DEFINE FIELD IF NOT EXISTS external_key ON audit_record TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS status ON audit_record TYPE string ASSERT $value IN ["SUCCESS", "FAILURE"];
    DEFINE FIELD IF NOT EXISTS raw_request ON audit_record TYPE string;
    DEFINE FIELD IF NOT EXISTS raw_response ON audit_record TYPE string;
    DEFINE FIELD IF NOT EXISTS timestamp ON audit_record TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS audit_job ON audit_record FIELDS job_id;
`
