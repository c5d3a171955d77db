package mcpserver

// RecordModel describes the record kinds and lifecycle rules that LLM
// consumers should follow when reading or changing trámites.
const RecordModel = `# Trámite Record Model

A trámite is an administrative procedure. Every other record hangs from one.

## Kinds

| Kind | Owner | Key fields |
|------|-------|------------|
| tramite | none | name, code (unique, case-insensitive), category (grado, posgrado, general), requiresPayment (si/no) |
| documento | tramite | name (unique per trámite), required (si/no), validityDays, fields |
| campo | documento | name, label, type (text, number, date, email, file, select), required, order |
| fecha | tramite | start, end, remediationStart, remediationEnd, description |
| estado | tramite | status (ACTIVE, INACTIVE), manual (si/no), actor, reason, changedAt |
| habilitacion | tramite | period (YYYY-1 or YYYY-2), enabled (si/no), start, end |

Dates are ` + "`" + `YYYY-MM-DD` + "`" + ` or RFC 3339 strings.

## Fecha rules

1. start < end, remediationStart < remediationEnd and end < remediationStart.
2. Two fechas of one trámite may not have the same four dates.
3. Every change to a fecha is recorded in its history with actor and reason.

## Status

The status of a fecha is derived, never stored:

- NO_DATES when any of the four dates is missing.
- PENDING before start.
- ACTIVE from start to end, and in the gap before remediationStart.
- REMEDIATION from remediationStart to remediationEnd.
- FINISHED after remediationEnd.

A trámite takes the status of its most recently created fecha. A manual
estado overrides the dates: manual ACTIVE reports ACTIVE, manual INACTIVE
reports INACTIVE.

## Estados

A trámite has at most one ACTIVE estado. Use the ` + "`" + `change_status` + "`" + ` tool: it
switches the current ACTIVE estado to INACTIVE before recording the new one.
`
