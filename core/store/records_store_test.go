package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestIncidentCRUD(t *testing.T) {
	records := NewRecordsStore(setupTestDB(t))
	ctx := context.Background()

	inc := &Incident{Title: "Phishing", Severity: "High", Status: "Open", Date: "2024-03-01", Description: "finance", CreatedBy: "alice"}
	id, err := records.CreateIncident(ctx, inc)
	require.NoError(t, err)
	require.Equal(t, id, inc.ID)

	got, err := records.GetIncident(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Phishing", got.Title)
	require.NotNil(t, got.CreatedAt)

	got.Status = "Resolved"
	require.NoError(t, records.UpdateIncident(ctx, got))
	got, _ = records.GetIncident(ctx, id)
	require.Equal(t, "Resolved", got.Status)

	require.NoError(t, records.DeleteIncident(ctx, id))
	require.ErrorIs(t, records.DeleteIncident(ctx, id), ErrNotFound)
	got, err = records.GetIncident(ctx, id)
	require.NoError(t, err)
	require.Nil(t, got)

	require.ErrorIs(t, records.UpdateIncident(ctx, &Incident{ID: 77}), ErrNotFound)
}

func TestListIncidentsFilters(t *testing.T) {
	records := NewRecordsStore(setupTestDB(t))
	ctx := context.Background()
	seed := []Incident{
		{Title: "a", Severity: "High", Status: "Open", Date: "2024-01-01"},
		{Title: "b", Severity: "Low", Status: "Closed", Date: "2024-01-03"},
		{Title: "c", Severity: "High", Status: "Closed", Date: "2024-01-02"},
	}
	for i := range seed {
		_, err := records.CreateIncident(ctx, &seed[i])
		require.NoError(t, err)
	}

	all, err := records.ListIncidents(ctx, RecordFilter{})
	require.NoError(t, err)
	var titles []string
	for _, inc := range all {
		titles = append(titles, inc.Title)
	}
	if diff := cmp.Diff([]string{"b", "c", "a"}, titles); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	high, err := records.ListIncidents(ctx, RecordFilter{Severity: "high"})
	require.NoError(t, err)
	require.Len(t, high, 2)

	closedHigh, err := records.ListIncidents(ctx, RecordFilter{Severity: "High", Status: "closed"})
	require.NoError(t, err)
	require.Len(t, closedHigh, 1)
	require.Equal(t, "c", closedHigh[0].Title)

	page, err := records.ListIncidents(ctx, RecordFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "c", page[0].Title)
}

func TestDatasetAndTicketCRUD(t *testing.T) {
	records := NewRecordsStore(setupTestDB(t))
	ctx := context.Background()

	ds := &Dataset{Name: "netflow", Source: "sensor", Category: "Network", Size: 120, Format: "csv", CreatedBy: "bob"}
	dsID, err := records.CreateDataset(ctx, ds)
	require.NoError(t, err)
	ds.Size = 150
	require.NoError(t, records.UpdateDataset(ctx, ds))
	gotDS, err := records.GetDataset(ctx, dsID)
	require.NoError(t, err)
	require.Equal(t, int64(150), gotDS.Size)
	byCat, err := records.ListDatasets(ctx, RecordFilter{Category: "network"})
	require.NoError(t, err)
	require.Len(t, byCat, 1)

	tk := &Ticket{Title: "VPN", Priority: "Medium", Status: "Open", CreatedDate: "2024-02-02", AssignedTo: "IT Support", CreatedBy: "bob"}
	tkID, err := records.CreateTicket(ctx, tk)
	require.NoError(t, err)
	tk.Status = "Closed"
	tk.Resolution = "client updated"
	require.NoError(t, records.UpdateTicket(ctx, tk))
	gotTK, err := records.GetTicket(ctx, tkID)
	require.NoError(t, err)
	require.Equal(t, "client updated", gotTK.Resolution)
	require.Equal(t, "bob", gotTK.CreatedBy)

	require.NoError(t, records.DeleteDataset(ctx, dsID))
	require.NoError(t, records.DeleteTicket(ctx, tkID))
	require.ErrorIs(t, records.DeleteTicket(ctx, tkID), ErrNotFound)
}

func TestDashboardStats(t *testing.T) {
	db := setupTestDB(t)
	records := NewRecordsStore(db)
	users := NewUsersStore(db)
	ctx := context.Background()

	_, err := users.Create(ctx, "admin", "h", "admin")
	require.NoError(t, err)
	_, err = users.Create(ctx, "alice", "h", "user")
	require.NoError(t, err)
	for _, inc := range []Incident{{Severity: "High", Status: "Open"}, {Severity: "High", Status: "Closed"}, {Severity: "Low", Status: "open"}} {
		inc := inc
		_, err := records.CreateIncident(ctx, &inc)
		require.NoError(t, err)
	}
	_, err = records.CreateDataset(ctx, &Dataset{Name: "a", Size: 10})
	require.NoError(t, err)
	_, err = records.CreateDataset(ctx, &Dataset{Name: "b", Size: 32})
	require.NoError(t, err)
	_, err = records.CreateTicket(ctx, &Ticket{Priority: "High", Status: "Open"})
	require.NoError(t, err)

	st, err := records.Stats(ctx)
	require.NoError(t, err)
	want := &DashboardStats{
		Incidents:            3,
		OpenIncidents:        2,
		Datasets:             2,
		TotalDatasetSize:     42,
		Tickets:              1,
		OpenTickets:          1,
		Users:                2,
		SeverityDistribution: map[string]int{"High": 2, "Low": 1},
		PriorityDistribution: map[string]int{"High": 1},
		RoleDistribution:     map[string]int{"admin": 1, "user": 1},
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}
