// Package database is the entry point of sqlexec: it ties a connection provider
// and a worker pool together and prepares statement handles wired to both.
//
// # Usage
//
//	client, err := database.New(database.PostgresConfig(connection.Connection{
//	    Host:     "localhost",
//	    Port:     "5432",
//	    User:     "app",
//	    Password: "secret",
//	    DbName:   "orders",
//	}), database.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect(ctx)
//
//	h, err := client.Prepare(ctx, "INSERT INTO orders(id, total) VALUES ($1, $2)")
//	if err != nil {
//	    return err
//	}
//	_ = h.SetParameter(1, id)
//	_ = h.SetParameter(2, total)
//	n, err := h.ExecuteUpdate(ctx)
//
// Every handle is single-use: it borrows one connection in Prepare and gives it
// back after its one execution, batch or Close.
//
// # Asynchronous execution
//
// Handles from a Client dispatch their *Async methods to the client's worker
// pool (Config.WorkerPool). Failures of executions submitted without a callback
// are logged and also reported to the sink given with WithSink, for example a
// deadletter.KafkaSink.
//
// # Dialects
//
// postgres, mysql, mariadb, sqlite and duckdb. Placeholders are whatever the
// driver accepts: $1 for postgres, ? for mysql, mariadb, sqlite and duckdb.
//
// Driver errors in a *statement.Error pass through connection.TranslateError,
// so errors.Is(err, connection.ErrDuplicateKey) works across dialects.
//
// # Disconnect
//
// Disconnect drains the worker pool, then closes the connection pool. It is
// safe to call more than once; only the first call can fail. Snapshots
// returned by ExecuteQuery hold no database resources and stay readable
// afterwards.
//
// With fx, include database.FXModule and supply a database.Config; the module
// connects on start, runs the provider's health loops and disconnects on stop.
package database
