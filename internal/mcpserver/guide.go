package mcpserver

// QueryGuide describes the search syntax and result fields so LLM callers
// can build queries without trial and error.
const QueryGuide = `# Cetus Query Guide

Queries use Lucene syntax against one index.

## Indexes

| index      | timestamp field        | typical fields                  |
|------------|------------------------|---------------------------------|
| dns        | dns_timestamp          | host, A, AAAA, CNAME, MX, NS    |
| certstream | certstream_timestamp   | host, leaf_cert, issuer         |
| alerting   | alerting_timestamp     | host, alert_id, matched         |

## Examples

    host:*.example.com              wildcard domain match
    A:192.0.2.1                     DNS A record lookup
    host:example.com AND A:*        combined conditions

## Notes

- The time filter is added for you; do not put the timestamp field in the query.
- since_days bounds how far back the search goes (default 7, 0 for no bound).
- media "nvme" is the fast recent tier, "all" includes archived data.
- Every record carries a "uuid" and the index timestamp field.
`
