// Package job contains the domain types exchanged with the cluster scheduler.
//
// It defines job configurations, task queries, quotas, response and update
// result codes, the derived update Outcome and the ShardSet of failed shards.
package job
