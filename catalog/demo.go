package catalog

import (
	"github.com/guileen/objectql/types"
)

// NewDemoRegistry builds the CRM schema used by the CLI, the server's
// default configuration, and the engine tests.
func NewDemoRegistry() *Registry {
	r := NewRegistry()

	r.Register(&types.ObjectMetadata{
		ObjectName:        "Account",
		TableName:         "accounts",
		HasRLS:            true,
		EstimatedRowCount: 50000,
		Fields: map[string]*types.FieldMetadata{
			"Id":            {FieldName: "Id", ColumnName: "id", DataType: "string", Indexed: true, Selectivity: 0.00002},
			"Name":          {FieldName: "Name", ColumnName: "name", DataType: "string", Indexed: true, Selectivity: 0.0001},
			"Industry":      {FieldName: "Industry", ColumnName: "industry", DataType: "string", Nullable: true, Selectivity: 0.05},
			"AnnualRevenue": {FieldName: "AnnualRevenue", ColumnName: "annual_revenue", DataType: "decimal", Nullable: true, Selectivity: 0.01},
			"OwnerId":       {FieldName: "OwnerId", ColumnName: "owner_id", DataType: "string", Indexed: true, Selectivity: 0.002},
			"TerritoryId":   {FieldName: "TerritoryId", ColumnName: "territory_id", DataType: "string", Nullable: true, Indexed: true, Selectivity: 0.01},
		},
		Relationships: []types.Relationship{
			{Name: "Owner", TargetObject: "User", ForeignKey: "owner_id", ReferencedKey: "id", Kind: types.RelationshipLookup},
			{Name: "Contacts", TargetObject: "Contact", ForeignKey: "account_id", ReferencedKey: "id", Kind: types.RelationshipChild},
			{Name: "Opportunities", TargetObject: "Opportunity", ForeignKey: "account_id", ReferencedKey: "id", Kind: types.RelationshipChild},
		},
	})

	r.Register(&types.ObjectMetadata{
		ObjectName:        "Contact",
		TableName:         "contacts",
		HasRLS:            true,
		EstimatedRowCount: 200000,
		Fields: map[string]*types.FieldMetadata{
			"Id":        {FieldName: "Id", ColumnName: "id", DataType: "string", Indexed: true, Selectivity: 0.000005},
			"Name":      {FieldName: "Name", ColumnName: "name", DataType: "string", Selectivity: 0.0001},
			"Email":     {FieldName: "Email", ColumnName: "email", DataType: "string", Nullable: true, Indexed: true, Selectivity: 0.000005},
			"AccountId": {FieldName: "AccountId", ColumnName: "account_id", DataType: "string", Indexed: true, Selectivity: 0.00002},
			"OwnerId":   {FieldName: "OwnerId", ColumnName: "owner_id", DataType: "string", Indexed: true, Selectivity: 0.002},
		},
		Relationships: []types.Relationship{
			{Name: "Account", TargetObject: "Account", ForeignKey: "account_id", ReferencedKey: "id", Kind: types.RelationshipLookup},
			{Name: "Owner", TargetObject: "User", ForeignKey: "owner_id", ReferencedKey: "id", Kind: types.RelationshipLookup},
		},
	})

	r.Register(&types.ObjectMetadata{
		ObjectName:        "Opportunity",
		TableName:         "opportunities",
		HasRLS:            true,
		EstimatedRowCount: 80000,
		Fields: map[string]*types.FieldMetadata{
			"Id":        {FieldName: "Id", ColumnName: "id", DataType: "string", Indexed: true, Selectivity: 0.0000125},
			"Name":      {FieldName: "Name", ColumnName: "name", DataType: "string", Selectivity: 0.0001},
			"StageName": {FieldName: "StageName", ColumnName: "stage_name", DataType: "string", Indexed: true, Selectivity: 0.1},
			"Amount":    {FieldName: "Amount", ColumnName: "amount", DataType: "decimal", Nullable: true, Selectivity: 0.01},
			"CloseDate": {FieldName: "CloseDate", ColumnName: "close_date", DataType: "date", Nullable: true, Selectivity: 0.005},
			"AccountId": {FieldName: "AccountId", ColumnName: "account_id", DataType: "string", Indexed: true, Selectivity: 0.00002},
			"OwnerId":   {FieldName: "OwnerId", ColumnName: "owner_id", DataType: "string", Indexed: true, Selectivity: 0.002},
		},
		Relationships: []types.Relationship{
			{Name: "Account", TargetObject: "Account", ForeignKey: "account_id", ReferencedKey: "id", Kind: types.RelationshipLookup},
			{Name: "Owner", TargetObject: "User", ForeignKey: "owner_id", ReferencedKey: "id", Kind: types.RelationshipLookup},
		},
	})

	r.Register(&types.ObjectMetadata{
		ObjectName:        "User",
		TableName:         "users",
		EstimatedRowCount: 500,
		Fields: map[string]*types.FieldMetadata{
			"Id":    {FieldName: "Id", ColumnName: "id", DataType: "string", Indexed: true, Selectivity: 0.002},
			"Name":  {FieldName: "Name", ColumnName: "name", DataType: "string", Selectivity: 0.002},
			"Email": {FieldName: "Email", ColumnName: "email", DataType: "string", Indexed: true, Selectivity: 0.002},
		},
	})

	r.Register(&types.ObjectMetadata{
		ObjectName:        "Share",
		TableName:         "shares",
		EstimatedRowCount: 300000,
		Fields: map[string]*types.FieldMetadata{
			"RecordId":      {FieldName: "RecordId", ColumnName: "record_id", DataType: "string", Indexed: true, Selectivity: 0.00001},
			"UserOrGroupId": {FieldName: "UserOrGroupId", ColumnName: "user_or_group_id", DataType: "string", Indexed: true, Selectivity: 0.002},
		},
	})

	r.Register(&types.ObjectMetadata{
		ObjectName:        "UserRoleHierarchy",
		TableName:         "user_role_hierarchy",
		EstimatedRowCount: 2000,
		Fields: map[string]*types.FieldMetadata{
			"SubordinateUserId": {FieldName: "SubordinateUserId", ColumnName: "subordinate_user_id", DataType: "string", Indexed: true, Selectivity: 0.001},
			"SupervisorUserId":  {FieldName: "SupervisorUserId", ColumnName: "supervisor_user_id", DataType: "string", Indexed: true, Selectivity: 0.002},
		},
	})

	return r
}
