/*
Package costs prices study execution.

Each surface carries a Pricing entry (per-1k input tokens, per-1k output
tokens, flat per-query fee), collected into a Table from configuration.
Two moments use the table:

  - Admission: Estimate produces the min/max band stored on the study.
    The band scales with the full matrix (queries x surfaces x locations)
    and the manifest's retry allowance.
  - Execution: CallCost prices one finished call from its actual token
    usage; the executor folds it into the study's running total and
    per-surface breakdown.

All amounts are USD. Surfaces missing from the table are free.
*/
package costs
